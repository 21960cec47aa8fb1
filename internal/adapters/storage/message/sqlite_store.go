package message

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"messageboard/internal/adapters/storage"
	"messageboard/internal/domain/identity"
	domain "messageboard/internal/domain/message"
)

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// SQLiteStore implements Store using SQLite. It stands in for the hosted
// backend and applies the same row rules: anyone may read, authors may only
// insert as themselves and only change or remove their own rows.
type SQLiteStore struct {
	db  storage.SQLDB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLiteStore.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// List retrieves all messages, newest first.
// PRE: none
// POST: Returns messages ordered by created_at descending
func (s *SQLiteStore) List(ctx context.Context) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, content, created_at, user_name, user_id
		 FROM messages ORDER BY created_at DESC, message_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListByAuthor retrieves the ID and content of one author's messages.
// PRE: userID is non-empty
// POST: Returns summaries ordered by created_at descending
func (s *SQLiteStore) ListByAuthor(ctx context.Context, userID string) ([]domain.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, content FROM messages
		 WHERE user_id = ? ORDER BY created_at DESC, message_id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list messages by author: %w", err)
	}
	defer rows.Close()

	var out []domain.Summary
	for rows.Next() {
		var m domain.Summary
		if err := rows.Scan(&m.ID, &m.Content); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Insert stores a new message authored by the caller.
// PRE: ctx carries an identity whose ID equals d.UserID
// POST: Message persisted with a store-assigned ID and CreatedAt
func (s *SQLiteStore) Insert(ctx context.Context, d domain.Draft) (domain.Message, error) {
	if err := d.Validate(); err != nil {
		return domain.Message{}, err
	}
	caller, ok := identity.FromContext(ctx)
	if !ok || caller.ID != d.UserID {
		return domain.Message{}, ErrNotPermitted
	}

	created := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (content, created_at, user_name, user_id) VALUES (?, ?, ?, ?)`,
		d.Content, created.Format(timeLayout), nullStr(d.UserName), d.UserID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return domain.Message{
		ID:        id,
		Content:   d.Content,
		CreatedAt: created,
		UserName:  d.UserName,
		UserID:    d.UserID,
	}, nil
}

// UpdateContent changes the content of a message the caller owns.
// PRE: id > 0; content is non-empty
// POST: Returns the updated rows; empty when the message is missing or not owned
func (s *SQLiteStore) UpdateContent(ctx context.Context, id int64, content string) ([]domain.Message, error) {
	if err := domain.ValidateContent(content); err != nil {
		return nil, err
	}
	caller, ok := identity.FromContext(ctx)
	if !ok {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`UPDATE messages SET content = ?
		 WHERE message_id = ? AND user_id = ?
		 RETURNING message_id, content, created_at, user_name, user_id`,
		content, id, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("update message %d: %w", id, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Delete removes a message the caller owns.
// PRE: id > 0
// POST: Message removed, or ErrNotPermitted when nothing matched
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	caller, ok := identity.FromContext(ctx)
	if !ok {
		return ErrNotPermitted
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE message_id = ? AND user_id = ?`, id, caller.ID)
	if err != nil {
		return fmt.Errorf("delete message %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete message %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotPermitted
	}
	return nil
}

// ListPosterNames returns each distinct author name once.
// PRE: none
// POST: Returns names in alphabetical order
func (s *SQLiteStore) ListPosterNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_name FROM messages
		 WHERE user_name IS NOT NULL AND user_name != '' ORDER BY user_name`)
	if err != nil {
		return nil, fmt.Errorf("list poster names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		var userName sql.NullString
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Content, &createdAt, &userName, &m.UserID); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		if userName.Valid {
			m.UserName = userName.String
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
