// Package localauth is the development identity backend. It issues opaque
// access tokens for accounts stored in the local SQLite database so the board
// can run without the hosted identity service.
package localauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	accountStore "messageboard/internal/adapters/storage/account"
	"messageboard/internal/domain/account"
	"messageboard/internal/domain/identity"
)

// Store is the account persistence the authenticator needs.
type Store interface {
	GetByID(ctx context.Context, id string) (account.Account, error)
	GetByEmail(ctx context.Context, email string) (account.Account, error)
	Save(ctx context.Context, a account.Account) error
	SaveToken(ctx context.Context, t account.Token) error
	GetToken(ctx context.Context, token string) (account.Token, error)
	DeleteToken(ctx context.Context, token string) error
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// Authenticator signs users in against the local account table.
type Authenticator struct {
	store Store
	now   func() time.Time
}

// New creates an Authenticator over store.
func New(store Store) *Authenticator {
	return &Authenticator{store: store, now: time.Now}
}

// SignInWithPassword verifies credentials and issues an access token.
// PRE: email and password are non-empty
// POST: Returns the identity with a fresh AccessToken; failed attempts are
// counted and the account locks after account.MaxFailedLogins
// INVARIANT: a locked account is never signed in
func (a *Authenticator) SignInWithPassword(ctx context.Context, email, password string) (identity.Identity, error) {
	if email == "" || password == "" {
		return identity.Identity{}, identity.ErrInvalidCredentials
	}
	now := a.now()

	acct, err := a.store.GetByEmail(ctx, email)
	if errors.Is(err, accountStore.ErrNotFound) {
		slog.Info("auth_event", "event", "login_failed", "email", email, "reason", "not_found")
		return identity.Identity{}, identity.ErrInvalidCredentials
	}
	if err != nil {
		return identity.Identity{}, fmt.Errorf("look up account: %w", err)
	}

	if acct.IsLocked(now) {
		slog.Info("auth_event", "event", "login_blocked", "email", email, "reason", "locked")
		return identity.Identity{}, identity.ErrAccountLocked
	}

	if err := acct.CheckPassword(password); err != nil {
		acct.RecordFailedLogin(now)
		if err := a.store.Save(ctx, acct); err != nil {
			slog.Warn("auth_event", "event", "lockout_save_failed", "account_id", acct.ID, "error", err.Error())
		}
		slog.Info("auth_event", "event", "login_failed", "email", email, "reason", "wrong_password", "failed_logins", acct.FailedLogins)
		return identity.Identity{}, identity.ErrInvalidCredentials
	}

	if acct.FailedLogins > 0 {
		acct.ResetFailedLogins()
		if err := a.store.Save(ctx, acct); err != nil {
			return identity.Identity{}, fmt.Errorf("reset failed logins: %w", err)
		}
	}

	token, err := generateToken()
	if err != nil {
		return identity.Identity{}, err
	}
	if err := a.store.SaveToken(ctx, account.Token{
		Token:     token,
		AccountID: acct.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(account.TokenTTL),
	}); err != nil {
		return identity.Identity{}, err
	}

	slog.Info("auth_event", "event", "login_success", "account_id", acct.ID)
	return acct.Identity(token), nil
}

// GetUser resolves an access token to its identity.
// PRE: none
// POST: Returns identity.ErrInvalidToken for unknown or expired tokens
func (a *Authenticator) GetUser(ctx context.Context, accessToken string) (identity.Identity, error) {
	if accessToken == "" {
		return identity.Identity{}, identity.ErrInvalidToken
	}
	tok, err := a.store.GetToken(ctx, accessToken)
	if errors.Is(err, accountStore.ErrNotFound) {
		return identity.Identity{}, identity.ErrInvalidToken
	}
	if err != nil {
		return identity.Identity{}, fmt.Errorf("look up token: %w", err)
	}
	if tok.IsExpired(a.now()) {
		return identity.Identity{}, identity.ErrInvalidToken
	}
	acct, err := a.store.GetByID(ctx, tok.AccountID)
	if errors.Is(err, accountStore.ErrNotFound) {
		return identity.Identity{}, identity.ErrInvalidToken
	}
	if err != nil {
		return identity.Identity{}, fmt.Errorf("look up account: %w", err)
	}
	return acct.Identity(accessToken), nil
}

// SignOut revokes the access token.
// POST: the token no longer resolves
func (a *Authenticator) SignOut(ctx context.Context, accessToken string) error {
	if err := a.store.DeleteToken(ctx, accessToken); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// PurgeExpired removes expired tokens. It is run periodically by the server.
func (a *Authenticator) PurgeExpired(ctx context.Context) (int64, error) {
	return a.store.DeleteExpiredTokens(ctx, a.now())
}

// Register creates an account. It is used to seed development accounts.
// PRE: email is valid; password satisfies account.MinPasswordLength
// POST: Account persisted with a bcrypt hash and a new UUID
func (a *Authenticator) Register(ctx context.Context, email, userName, password string) (account.Account, error) {
	acct := account.Account{
		ID:        uuid.NewString(),
		Email:     email,
		UserName:  userName,
		CreatedAt: a.now(),
	}
	if err := acct.Validate(); err != nil {
		return account.Account{}, err
	}
	if err := acct.SetPassword(password); err != nil {
		return account.Account{}, err
	}
	if err := a.store.Save(ctx, acct); err != nil {
		return account.Account{}, err
	}
	slog.Info("auth_event", "event", "account_created", "account_id", acct.ID)
	return acct, nil
}

// generateToken creates a cryptographically random access token.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
