package orchestrators

import (
	"context"
	"log/slog"

	"messageboard/internal/domain/identity"
	"messageboard/internal/domain/message"
)

// DeleteMessageInput carries input for the delete orchestrator.
type DeleteMessageInput struct {
	MessageID int64
}

// DeleteMessageDeps holds dependencies for DeleteMessage.
type DeleteMessageDeps struct {
	Mutations *MessageMutations
}

// ExecuteDeleteMessage removes a message. The store decides whether the
// caller may; there is no optimistic removal.
// PRE: ctx carries the author's identity
// POST: On success the feed is invalidated; on failure the cache is untouched
func ExecuteDeleteMessage(ctx context.Context, input DeleteMessageInput, deps DeleteMessageDeps) error {
	id, ok := identity.FromContext(ctx)
	if !ok {
		return ErrNotSignedIn
	}
	if input.MessageID <= 0 {
		return message.ErrInvalidID
	}
	if _, err := deps.Mutations.Delete.Mutate(ctx, input.MessageID); err != nil {
		return err
	}
	slog.Info("message_event", "event", "deleted", "message_id", input.MessageID, "user_id", id.ID)
	return nil
}
