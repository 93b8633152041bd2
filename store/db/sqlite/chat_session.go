package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/rasphia/rasphia/store"
)

func (d *DB) CreateChatSession(ctx context.Context, create *store.ChatSession) (*store.ChatSession, error) {
	fields := []string{"uid", "owner_key", "title", "created_ts", "updated_ts"}
	args := []any{create.UID, create.OwnerKey, create.Title, create.CreatedTs, create.UpdatedTs}

	stmt := `INSERT INTO chat_session (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create chat_session")
	}

	return create, nil
}

func (d *DB) ListChatSessions(ctx context.Context, find *store.FindChatSession) ([]*store.ChatSession, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = ?"), append(args, *find.UID)
	}
	if find.OwnerKey != nil {
		where, args = append(where, "owner_key = ?"), append(args, *find.OwnerKey)
	}
	if find.Search != nil {
		where = append(where, "(title LIKE ? OR id IN (SELECT session_id FROM chat_message WHERE content LIKE ?))")
		pattern := "%" + *find.Search + "%"
		args = append(args, pattern, pattern)
	}

	query := `SELECT id, uid, owner_key, title, created_ts, updated_ts FROM chat_session WHERE ` + strings.Join(where, " AND ") + ` ORDER BY updated_ts DESC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list chat_sessions")
	}
	defer rows.Close()

	list := make([]*store.ChatSession, 0)
	for rows.Next() {
		s := &store.ChatSession{}
		if err := rows.Scan(&s.ID, &s.UID, &s.OwnerKey, &s.Title, &s.CreatedTs, &s.UpdatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan chat_session")
		}
		list = append(list, s)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate chat_sessions")
	}

	return list, nil
}

func (d *DB) UpdateChatSession(ctx context.Context, update *store.UpdateChatSession) (*store.ChatSession, error) {
	set, args := []string{}, []any{}

	if update.Title != nil {
		set, args = append(set, "title = ?"), append(args, *update.Title)
	}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = MAX(updated_ts, ?)"), append(args, *update.UpdatedTs)
	}

	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE chat_session SET ` + strings.Join(set, ", ") + ` WHERE id = ? RETURNING id, uid, owner_key, title, created_ts, updated_ts`
	result := &store.ChatSession{}
	err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&result.ID, &result.UID, &result.OwnerKey, &result.Title, &result.CreatedTs, &result.UpdatedTs,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("chat_session not found")
		}
		return nil, errors.Wrap(err, "failed to update chat_session")
	}

	return result, nil
}

func (d *DB) DeleteChatSession(ctx context.Context, delete *store.DeleteChatSession) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM chat_message WHERE session_id = ?`, delete.ID); err != nil {
		return errors.Wrap(err, "failed to delete chat_messages")
	}
	result, err := d.db.ExecContext(ctx, `DELETE FROM chat_session WHERE id = ?`, delete.ID)
	if err != nil {
		return errors.Wrap(err, "failed to delete chat_session")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.New("chat_session not found")
	}

	return nil
}

func (d *DB) CreateChatMessage(ctx context.Context, create *store.ChatMessage) (*store.ChatMessage, error) {
	fields := []string{"uid", "session_id", "role", "content", "payload", "created_ts"}
	args := []any{create.UID, create.SessionID, string(create.Role), create.Content, create.Payload, create.CreatedTs}

	stmt := `INSERT INTO chat_message (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create chat_message")
	}

	return create, nil
}

func (d *DB) AppendChatMessages(ctx context.Context, sessionID int32, messages []*store.ChatMessage, updatedTs int64) (*store.ChatSession, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt := `INSERT INTO chat_message (uid, session_id, role, content, payload, created_ts)
		VALUES (` + placeholders(6) + `)
		RETURNING id`
	for _, m := range messages {
		if err := tx.QueryRowContext(ctx, stmt,
			m.UID, sessionID, string(m.Role), m.Content, m.Payload, m.CreatedTs,
		).Scan(&m.ID); err != nil {
			return nil, errors.Wrap(err, "failed to append chat_message")
		}
	}

	session := &store.ChatSession{}
	update := `UPDATE chat_session SET updated_ts = MAX(updated_ts, ?) WHERE id = ?
		RETURNING id, uid, owner_key, title, created_ts, updated_ts`
	if err := tx.QueryRowContext(ctx, update, updatedTs, sessionID).Scan(
		&session.ID, &session.UID, &session.OwnerKey, &session.Title, &session.CreatedTs, &session.UpdatedTs,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("chat_session not found")
		}
		return nil, errors.Wrap(err, "failed to refresh session timestamp")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit chat message append")
	}
	return session, nil
}

func (d *DB) ListChatMessages(ctx context.Context, find *store.FindChatMessage) ([]*store.ChatMessage, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.SessionID != nil {
		where, args = append(where, "session_id = ?"), append(args, *find.SessionID)
	}

	query := `SELECT id, uid, session_id, role, content, payload, created_ts FROM chat_message WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts ASC, id ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list chat_messages")
	}
	defer rows.Close()

	list := make([]*store.ChatMessage, 0)
	for rows.Next() {
		m := &store.ChatMessage{}
		var role string
		if err := rows.Scan(&m.ID, &m.UID, &m.SessionID, &role, &m.Content, &m.Payload, &m.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan chat_message")
		}
		m.Role = store.ChatMessageRole(role)
		list = append(list, m)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate chat_messages")
	}

	return list, nil
}
