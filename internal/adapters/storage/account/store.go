package account

import (
	"context"
	"errors"
	"time"

	domain "messageboard/internal/domain/account"
)

// ErrNotFound is returned when no account or token matches.
var ErrNotFound = errors.New("not found")

// Store persists accounts and the access tokens issued to them.
type Store interface {
	GetByID(ctx context.Context, id string) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	Save(ctx context.Context, value domain.Account) error
	Count(ctx context.Context) (int, error)
	SaveToken(ctx context.Context, token domain.Token) error
	GetToken(ctx context.Context, token string) (domain.Token, error)
	DeleteToken(ctx context.Context, token string) error
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}
