package orchestrators

import (
	"context"
	"errors"
	"log/slog"

	"messageboard/internal/application/session"
	"messageboard/internal/domain/identity"
)

// SessionSignIn is the registry side of sign-in.
type SessionSignIn interface {
	SignIn(ctx context.Context, email, password string) (string, *session.Provider, error)
}

// SignInInput carries input for the sign-in orchestrator.
type SignInInput struct {
	Email    string
	Password string
}

// SignInResult carries the session token for the cookie and the identity.
type SignInResult struct {
	Token    string
	Identity identity.Identity
}

// SignInDeps holds dependencies for SignIn.
type SignInDeps struct {
	Sessions SessionSignIn
}

// ExecuteSignIn authenticates against the identity backend and opens a session.
// PRE: none
// POST: Returns a session token on success; rejected credentials return
// identity.ErrInvalidCredentials or identity.ErrAccountLocked
func ExecuteSignIn(ctx context.Context, input SignInInput, deps SignInDeps) (SignInResult, error) {
	if input.Email == "" || input.Password == "" {
		return SignInResult{}, identity.ErrInvalidCredentials
	}
	token, p, err := deps.Sessions.SignIn(ctx, input.Email, input.Password)
	if err != nil {
		if !errors.Is(err, identity.ErrInvalidCredentials) && !errors.Is(err, identity.ErrAccountLocked) {
			slog.Error("auth_event", "event", "sign_in_error", "email", input.Email, "error", err.Error())
		}
		return SignInResult{}, err
	}
	id, _ := p.Current()
	slog.Info("auth_event", "event", "signed_in", "user_id", id.ID)
	return SignInResult{Token: token, Identity: id}, nil
}
