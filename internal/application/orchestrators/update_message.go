package orchestrators

import (
	"context"
	"log/slog"

	"messageboard/internal/domain/identity"
	"messageboard/internal/domain/message"
)

// UpdateMessageInput carries input for the update orchestrator.
type UpdateMessageInput struct {
	MessageID int64 // zero means nothing is selected
	Content   string
}

// UpdateMessageDeps holds dependencies for UpdateMessage.
type UpdateMessageDeps struct {
	Mutations *MessageMutations
}

// ExecuteUpdateMessage replaces the content of one of the user's messages.
// PRE: ctx carries the author's identity
// POST: Exactly one row changed, or ErrNoRowsUpdated and nothing is
// invalidated. With no selection ErrNoMessageSelected is returned and no
// store call is made
func ExecuteUpdateMessage(ctx context.Context, input UpdateMessageInput, deps UpdateMessageDeps) (message.Message, error) {
	id, ok := identity.FromContext(ctx)
	if !ok {
		return message.Message{}, ErrNotSignedIn
	}
	if input.MessageID == 0 {
		return message.Message{}, ErrNoMessageSelected
	}
	if input.MessageID < 0 {
		return message.Message{}, message.ErrInvalidID
	}
	if err := message.ValidateContent(input.Content); err != nil {
		return message.Message{}, err
	}

	m, err := deps.Mutations.Update.Mutate(ctx, ContentUpdate{ID: input.MessageID, Content: input.Content})
	if err != nil {
		return message.Message{}, err
	}
	slog.Info("message_event", "event", "updated", "message_id", m.ID, "user_id", id.ID)
	return m, nil
}
