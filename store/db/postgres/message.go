package postgres

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/parleychat/parley/store"
)

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	parts, err := json.Marshal(create.Parts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal parts")
	}
	attachments, err := json.Marshal(create.Attachments)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal attachments")
	}

	stmt := `INSERT INTO message (id, conversation_uid, role, parts, attachments, created_ts)
		VALUES (` + placeholders(6) + `)`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID, create.ConversationUID, create.Role, string(parts), string(attachments), create.CreatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create message")
	}
	return create, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.ConversationUID != nil {
		where, args = append(where, "conversation_uid = "+placeholder(len(args)+1)), append(args, *find.ConversationUID)
	}

	// Append order is creation order; ties broken by physical insertion order.
	query := `SELECT id, conversation_uid, role, parts, attachments, created_ts
		FROM message
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts ASC, ctid ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	defer rows.Close()

	list := make([]*store.Message, 0)
	for rows.Next() {
		m := &store.Message{}
		var parts, attachments []byte
		if err := rows.Scan(&m.ID, &m.ConversationUID, &m.Role, &parts, &attachments, &m.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		if err := json.Unmarshal(parts, &m.Parts); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal parts of message %s", m.ID)
		}
		if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal attachments of message %s", m.ID)
		}
		list = append(list, m)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate messages")
	}

	return list, nil
}
