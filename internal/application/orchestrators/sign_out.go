package orchestrators

import (
	"context"
	"log/slog"

	"messageboard/internal/application/projections"
	"messageboard/internal/application/querycache"
	"messageboard/internal/domain/identity"
)

// SessionSignOut is the registry side of sign-out.
type SessionSignOut interface {
	SignOut(ctx context.Context, token string) error
}

// SignOutInput carries input for the sign-out orchestrator.
type SignOutInput struct {
	Token string
}

// SignOutDeps holds dependencies for SignOut.
type SignOutDeps struct {
	Sessions SessionSignOut
	Cache    *querycache.Cache
}

// ExecuteSignOut ends the session and drops the user's cached reads.
// PRE: ctx carries the identity being signed out, if any
// POST: the token no longer resolves and the user's editor list is evicted,
// even when revocation at the identity backend failed
func ExecuteSignOut(ctx context.Context, input SignOutInput, deps SignOutDeps) error {
	id, signedIn := identity.FromContext(ctx)
	if input.Token == "" && !signedIn {
		return nil
	}
	err := deps.Sessions.SignOut(ctx, input.Token)
	if signedIn {
		deps.Cache.Remove(projections.UserMessagesKey(id.ID))
	}
	if err != nil {
		slog.Warn("auth_event", "event", "sign_out_failed", "user_id", id.ID, "error", err.Error())
		return err
	}
	slog.Info("auth_event", "event", "signed_out", "user_id", id.ID)
	return nil
}
