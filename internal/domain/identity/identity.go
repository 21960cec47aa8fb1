package identity

import (
	"context"
	"errors"

	"messageboard/internal/domain/message"
)

// Errors reported by identity backends.
var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrAccountLocked      = errors.New("account is locked due to too many failed attempts")
	ErrInvalidToken       = errors.New("access token is invalid or expired")
)

// Identity is the signed-in user as reported by the identity backend.
type Identity struct {
	ID       string
	Email    string
	UserName string // display-name metadata, optional

	// AccessToken authenticates store calls made on behalf of this identity.
	// It is never rendered.
	AccessToken string
}

// IsZero reports whether the identity is absent.
func (i Identity) IsZero() bool {
	return i.ID == ""
}

// AuthorName resolves the name stamped on messages this identity creates:
// display name, then email, then AnonymousName.
func (i Identity) AuthorName() string {
	if i.UserName != "" {
		return i.UserName
	}
	if i.Email != "" {
		return i.Email
	}
	return message.AnonymousName
}

type contextKey struct{}

// NewContext returns a context carrying id. Store adapters read it to act on
// behalf of the caller.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity carried by ctx, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	if !ok || id.IsZero() {
		return Identity{}, false
	}
	return id, true
}
