package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/parleychat/parley/store"
)

func (d *DB) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	stmt := `INSERT INTO conversation (uid, owner_id, title, visibility, created_ts, last_activity_ts)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.UID, create.OwnerID, create.Title, create.Visibility, create.CreatedTs, create.LastActivityTs,
	).Scan(&create.ID); err != nil {
		// The UNIQUE(uid) constraint is the arbiter for concurrent creation
		// races; surface a distinguishable error so callers can retry the read.
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, store.ErrDuplicateKey
		}
		return nil, errors.Wrap(err, "failed to create conversation")
	}
	return create, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = ?"), append(args, *find.UID)
	}
	if find.OwnerID != nil {
		where, args = append(where, "owner_id = ?"), append(args, *find.OwnerID)
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
		set, args = append(set, "title = ?"), append(args, *update.Title)
	}
	if update.Visibility != nil {
		set, args = append(set, "visibility = ?"), append(args, *update.Visibility)
	}
	if update.LastActivityTs != nil {
		set, args = append(set, "last_activity_ts = ?"), append(args, *update.LastActivityTs)
	}

	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	args = append(args, update.UID)
	stmt := `UPDATE conversation SET ` + strings.Join(set, ", ") + ` WHERE uid = ?
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
	if _, err := d.db.ExecContext(ctx, "DELETE FROM message WHERE conversation_uid = ?", delete.UID); err != nil {
		return errors.Wrap(err, "failed to delete messages")
	}
	if _, err := d.db.ExecContext(ctx, "DELETE FROM conversation WHERE uid = ?", delete.UID); err != nil {
		return errors.Wrap(err, "failed to delete conversation")
	}
	return nil
}
