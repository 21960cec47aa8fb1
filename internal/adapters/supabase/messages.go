package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	messageStore "messageboard/internal/adapters/storage/message"
	"messageboard/internal/domain/message"
)

const (
	messagesPath = "/rest/v1/messages"
	postersPath  = "/rest/v1/rpc/get_message_usernames"

	returnRepresentation = "return=representation"
)

// MessageStore implements the message store boundary against the hosted
// messages table.
type MessageStore struct {
	c *Client
}

var _ messageStore.Store = (*MessageStore)(nil)

// Messages returns the message store backed by c.
func (c *Client) Messages() *MessageStore {
	return &MessageStore{c: c}
}

// wireMessage is the row shape PostgREST returns. created_at is kept as text
// because timestamp columns may come back with or without a zone.
type wireMessage struct {
	ID        int64   `json:"message_id"`
	Content   string  `json:"content"`
	CreatedAt string  `json:"created_at"`
	UserName  *string `json:"user_name"`
	UserID    string  `json:"user_id"`
}

func (w wireMessage) toDomain() message.Message {
	m := message.Message{ID: w.ID, Content: w.Content, UserID: w.UserID}
	if w.UserName != nil {
		m.UserName = *w.UserName
	}
	m.CreatedAt = parseTimestamp(w.CreatedAt)
	return m
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05.999999",
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func toDomain(rows []wireMessage) []message.Message {
	out := make([]message.Message, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out
}

func byID(id int64) url.Values {
	return url.Values{"message_id": {"eq." + strconv.FormatInt(id, 10)}}
}

// List reads every message, newest first.
// PRE: none
// POST: Returns rows visible to the caller ordered by created_at descending
func (s *MessageStore) List(ctx context.Context) ([]message.Message, error) {
	var rows []wireMessage
	err := s.c.do(ctx, request{
		method: http.MethodGet,
		path:   messagesPath,
		query:  url.Values{"select": {"*"}, "order": {"created_at.desc"}},
	}, &rows)
	if err != nil {
		return nil, err
	}
	return toDomain(rows), nil
}

// ListByAuthor reads the ID and content of userID's messages, newest first.
// PRE: userID is non-empty
func (s *MessageStore) ListByAuthor(ctx context.Context, userID string) ([]message.Summary, error) {
	var rows []message.Summary
	err := s.c.do(ctx, request{
		method: http.MethodGet,
		path:   messagesPath,
		query: url.Values{
			"select":  {"message_id,content"},
			"user_id": {"eq." + userID},
			"order":   {"created_at.desc"},
		},
	}, &rows)
	return rows, err
}

// Insert creates a message and returns the stored row.
// PRE: d is valid; ctx carries the author's identity
// POST: Returns the row with server-assigned ID and CreatedAt
func (s *MessageStore) Insert(ctx context.Context, d message.Draft) (message.Message, error) {
	if err := d.Validate(); err != nil {
		return message.Message{}, err
	}
	var rows []wireMessage
	err := s.c.do(ctx, request{
		method: http.MethodPost,
		path:   messagesPath,
		body:   d,
		prefer: returnRepresentation,
	}, &rows)
	if err != nil {
		return message.Message{}, err
	}
	if len(rows) == 0 {
		return message.Message{}, fmt.Errorf("supabase: insert returned no row: %w", messageStore.ErrNotPermitted)
	}
	return rows[0].toDomain(), nil
}

// UpdateContent replaces a message's content and returns the changed rows.
// Row-level security hides rows the caller does not own, so an empty result
// is returned as-is.
// PRE: id > 0; content is non-empty
func (s *MessageStore) UpdateContent(ctx context.Context, id int64, content string) ([]message.Message, error) {
	if err := message.ValidateContent(content); err != nil {
		return nil, err
	}
	var rows []wireMessage
	err := s.c.do(ctx, request{
		method: http.MethodPatch,
		path:   messagesPath,
		query:  byID(id),
		body:   map[string]string{"content": content},
		prefer: returnRepresentation,
	}, &rows)
	if err != nil {
		return nil, err
	}
	return toDomain(rows), nil
}

// Delete removes a message. PostgREST reports success for a filter that
// matched nothing, so the deleted rows are requested back and an empty
// result is reported as ErrNotPermitted.
// PRE: id > 0
func (s *MessageStore) Delete(ctx context.Context, id int64) error {
	var rows []wireMessage
	err := s.c.do(ctx, request{
		method: http.MethodDelete,
		path:   messagesPath,
		query:  byID(id),
		prefer: returnRepresentation,
	}, &rows)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return messageStore.ErrNotPermitted
	}
	return nil
}

// ListPosterNames calls get_message_usernames.
// POST: Returns names in the order the procedure produced them
func (s *MessageStore) ListPosterNames(ctx context.Context) ([]string, error) {
	var rows []struct {
		UserName string `json:"user_name"`
	}
	err := s.c.do(ctx, request{
		method: http.MethodPost,
		path:   postersPath,
		body:   struct{}{},
	}, &rows)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.UserName
	}
	return names, nil
}
