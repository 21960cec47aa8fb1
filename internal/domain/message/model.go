package message

import (
	"errors"
	"strings"
	"time"
)

// AnonymousName is the author name used when an identity has neither a
// display name nor an email.
const AnonymousName = "Anonymous"

// PreviewLength is the number of characters shown when listing a message
// in a selector.
const PreviewLength = 30

// Domain errors
var (
	ErrEmptyContent = errors.New("message content cannot be empty")
	ErrEmptyUserID  = errors.New("author user ID is required")
	ErrInvalidID    = errors.New("message ID must be positive")
)

// Message is one posted note as stored by the backend.
type Message struct {
	ID        int64     `json:"message_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UserName  string    `json:"user_name"`
	UserID    string    `json:"user_id"`
}

// Draft is the insert shape of a Message. ID and CreatedAt are assigned by
// the store.
type Draft struct {
	Content  string `json:"content"`
	UserName string `json:"user_name"`
	UserID   string `json:"user_id"`
}

// Summary is the reduced shape used by the editor.
type Summary struct {
	ID      int64  `json:"message_id"`
	Content string `json:"content"`
}

// Validate checks if the Draft has valid data.
// PRE: Draft struct is populated
// POST: Returns nil if valid, error otherwise
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Content) == "" {
		return ErrEmptyContent
	}
	if d.UserID == "" {
		return ErrEmptyUserID
	}
	return nil
}

// IsOwnedBy reports whether userID authored the message.
// An empty userID never owns anything.
func (m Message) IsOwnedBy(userID string) bool {
	return userID != "" && m.UserID == userID
}

// Summary returns the editor shape of the message.
func (m Message) Summary() Summary {
	return Summary{ID: m.ID, Content: m.Content}
}

// Preview returns the first PreviewLength characters of the content
// followed by an ellipsis.
func (s Summary) Preview() string {
	r := []rune(s.Content)
	if len(r) > PreviewLength {
		r = r[:PreviewLength]
	}
	return string(r) + "…"
}

// ValidateContent checks replacement content for an existing message.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	return nil
}
