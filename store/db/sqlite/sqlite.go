package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/parleychat/parley/internal/profile"
	"github.com/parleychat/parley/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the SQLite database pointed at by the profile DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// Connect to the database with some sane settings:
	// - No shared-cache: it's obsolete; WAL journal mode is a better solution.
	// - Busy timeout so concurrent turn submissions queue on the write lock
	//   instead of failing immediately.
	//
	// Note: with the `modernc.org/sqlite` driver, each pragma must be prefixed
	// with `_pragma=`.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// SQLite handles concurrency at the file level; a single connection with
	// WAL mode is optimal and sidesteps SQLITE_BUSY on concurrent writes.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	driver := DB{db: sqliteDB, profile: profile}

	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

const latestSchema = `
CREATE TABLE IF NOT EXISTS conversation (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uid TEXT NOT NULL,
	owner_id INTEGER NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	visibility TEXT NOT NULL DEFAULT 'private',
	created_ts BIGINT NOT NULL,
	last_activity_ts BIGINT NOT NULL,
	UNIQUE(uid)
);

CREATE TABLE IF NOT EXISTS message (
	id TEXT PRIMARY KEY,
	conversation_uid TEXT NOT NULL,
	role TEXT NOT NULL,
	parts TEXT NOT NULL DEFAULT '[]',
	attachments TEXT NOT NULL DEFAULT '[]',
	created_ts BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_message_conversation_uid_created_ts ON message (conversation_uid, created_ts);
`

// Migrate applies the latest schema. All statements are idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, latestSchema); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}
	return nil
}
