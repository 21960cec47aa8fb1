package message

import (
	"context"
	"errors"

	domain "messageboard/internal/domain/message"
)

// ErrNotPermitted is returned when the caller may not perform a write on the
// targeted rows, either because no identity is attached or because the rows
// belong to someone else.
var ErrNotPermitted = errors.New("not permitted")

// Store is the remote store boundary for messages. Implementations act on
// behalf of the identity carried by ctx (see identity.NewContext) and enforce
// ownership themselves; callers never inspect error subtypes beyond the
// sentinels declared here.
type Store interface {
	// List returns every message, newest first.
	List(ctx context.Context) ([]domain.Message, error)
	// ListByAuthor returns the editor view of userID's messages, newest first.
	ListByAuthor(ctx context.Context, userID string) ([]domain.Summary, error)
	// Insert stores a draft and returns the stored row.
	Insert(ctx context.Context, d domain.Draft) (domain.Message, error)
	// UpdateContent replaces the content of message id and returns the rows
	// that changed. Rows the caller does not own are silently excluded, so
	// an empty result is not an error here.
	UpdateContent(ctx context.Context, id int64, content string) ([]domain.Message, error)
	// Delete removes message id. Deleting nothing returns ErrNotPermitted.
	Delete(ctx context.Context, id int64) error
	// ListPosterNames returns the distinct author names.
	ListPosterNames(ctx context.Context) ([]string, error)
}
