package orchestrators

import (
	"context"
	"log/slog"

	"messageboard/internal/domain/identity"
	"messageboard/internal/domain/message"
)

// CreateMessageInput carries input for the create orchestrator.
type CreateMessageInput struct {
	Content string
}

// CreateMessageDeps holds dependencies for CreateMessage.
type CreateMessageDeps struct {
	Mutations *MessageMutations
}

// ExecuteCreateMessage posts a message as the signed-in user.
// PRE: ctx carries the author's identity
// POST: Returns the stored message; ErrNotSignedIn or message.ErrEmptyContent
// are returned before any store call
// INVARIANT: UserName is the display name, else the email, else "Anonymous"
func ExecuteCreateMessage(ctx context.Context, input CreateMessageInput, deps CreateMessageDeps) (message.Message, error) {
	id, ok := identity.FromContext(ctx)
	if !ok {
		return message.Message{}, ErrNotSignedIn
	}
	draft := message.Draft{
		Content:  input.Content,
		UserName: id.AuthorName(),
		UserID:   id.ID,
	}
	if err := draft.Validate(); err != nil {
		return message.Message{}, err
	}

	m, err := deps.Mutations.Create.Mutate(ctx, draft)
	if err != nil {
		return message.Message{}, err
	}
	slog.Info("message_event", "event", "created", "message_id", m.ID, "user_id", id.ID)
	return m, nil
}
