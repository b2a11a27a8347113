package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/parleychat/parley/internal/profile"
	"github.com/parleychat/parley/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a PostgreSQL database using the profile DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	postgresDB, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	driver := DB{db: postgresDB, profile: profile}

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
	id SERIAL PRIMARY KEY,
	uid TEXT NOT NULL UNIQUE,
	owner_id INTEGER NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	visibility TEXT NOT NULL DEFAULT 'private',
	created_ts BIGINT NOT NULL,
	last_activity_ts BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS message (
	id TEXT PRIMARY KEY,
	conversation_uid TEXT NOT NULL,
	role TEXT NOT NULL,
	parts JSONB NOT NULL DEFAULT '[]',
	attachments JSONB NOT NULL DEFAULT '[]',
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

// placeholder returns $n for PostgreSQL positional parameters.
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns "$1, $2, ... $n".
func placeholders(n int) string {
	list := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		list = append(list, placeholder(i))
	}
	return strings.Join(list, ", ")
}
