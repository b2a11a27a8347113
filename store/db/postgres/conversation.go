package postgres

import (
	"context"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/parleychat/parley/store"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

func (d *DB) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	fields := []string{"uid", "owner_id", "title", "visibility", "created_ts", "last_activity_ts"}
	args := []any{create.UID, create.OwnerID, create.Title, create.Visibility, create.CreatedTs, create.LastActivityTs}

	stmt := `INSERT INTO conversation (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil, store.ErrDuplicateKey
		}
		return nil, errors.Wrap(err, "failed to create conversation")
	}
	return create, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.OwnerID != nil {
		where, args = append(where, "owner_id = "+placeholder(len(args)+1)), append(args, *find.OwnerID)
	}

	query := `SELECT id, uid, owner_id, title, visibility, created_ts, last_activity_ts
		FROM conversation
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY last_activity_ts DESC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	defer rows.Close()

	list := make([]*store.Conversation, 0)
	for rows.Next() {
		c := &store.Conversation{}
		if err := rows.Scan(&c.ID, &c.UID, &c.OwnerID, &c.Title, &c.Visibility, &c.CreatedTs, &c.LastActivityTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation")
		}
		list = append(list, c)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate conversations")
	}

	return list, nil
}

func (d *DB) UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	set, args := []string{}, []any{}

	if update.Title != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *update.Title)
	}
	if update.Visibility != nil {
		set, args = append(set, "visibility = "+placeholder(len(args)+1)), append(args, *update.Visibility)
	}
	if update.LastActivityTs != nil {
		set, args = append(set, "last_activity_ts = "+placeholder(len(args)+1)), append(args, *update.LastActivityTs)
	}

	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	args = append(args, update.UID)
	stmt := `UPDATE conversation SET ` + strings.Join(set, ", ") + ` WHERE uid = ` + placeholder(len(args)) + `
		RETURNING id, uid, owner_id, title, visibility, created_ts, last_activity_ts`
	result := &store.Conversation{}
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&result.ID, &result.UID, &result.OwnerID, &result.Title, &result.Visibility, &result.CreatedTs, &result.LastActivityTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to update conversation")
	}
	return result, nil
}

func (d *DB) DeleteConversation(ctx context.Context, delete *store.DeleteConversation) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM message WHERE conversation_uid = $1", delete.UID); err != nil {
		return errors.Wrap(err, "failed to delete messages")
	}
	if _, err := d.db.ExecContext(ctx, "DELETE FROM conversation WHERE uid = $1", delete.UID); err != nil {
		return errors.Wrap(err, "failed to delete conversation")
	}
	return nil
}
