package orchestrators

import (
	"context"
	"errors"
	"log/slog"

	"messageboard/internal/application/projections"
	"messageboard/internal/application/querycache"
	"messageboard/internal/domain/identity"
	"messageboard/internal/domain/message"
)

// Client-side precondition and result errors.
var (
	ErrNotSignedIn       = errors.New("not signed in")
	ErrNoMessageSelected = errors.New("no message selected")
	ErrNoRowsUpdated     = errors.New("update failed: no rows updated")
)

// MessageWriter is the write side of the message store.
type MessageWriter interface {
	Insert(ctx context.Context, d message.Draft) (message.Message, error)
	UpdateContent(ctx context.Context, id int64, content string) ([]message.Message, error)
	Delete(ctx context.Context, id int64) error
}

// ContentUpdate is the input of the update mutation.
type ContentUpdate struct {
	ID      int64
	Content string
}

// MessageMutations are the board's write paths. One set is built per
// process and shared by every request.
type MessageMutations struct {
	Create *querycache.Mutation[message.Draft, message.Message]
	Update *querycache.Mutation[ContentUpdate, message.Message]
	Delete *querycache.Mutation[int64, struct{}]
}

// NewMessageMutations wires the writes of store to invalidations on cache.
// PRE: store and cache are non-nil
// POST: Create never invalidates (the feed poll observes new rows); Update
// and Delete invalidate the feed and the author's editor list on success
func NewMessageMutations(store MessageWriter, cache *querycache.Cache) *MessageMutations {
	invalidateFor := func(ctx context.Context) {
		cache.Invalidate(projections.MessagesKey())
		if id, ok := identity.FromContext(ctx); ok {
			cache.Invalidate(projections.UserMessagesKey(id.ID))
		}
	}

	return &MessageMutations{
		Create: querycache.NewMutation(store.Insert, querycache.MutationOptions[message.Draft, message.Message]{
			OnError: func(ctx context.Context, d message.Draft, err error) {
				slog.Error("message_event", "event", "create_failed", "user_id", d.UserID, "error", err.Error())
			},
		}),
		Update: querycache.NewMutation(func(ctx context.Context, in ContentUpdate) (message.Message, error) {
			rows, err := store.UpdateContent(ctx, in.ID, in.Content)
			if err != nil {
				return message.Message{}, err
			}
			if len(rows) == 0 {
				return message.Message{}, ErrNoRowsUpdated
			}
			return rows[0], nil
		}, querycache.MutationOptions[ContentUpdate, message.Message]{
			OnSuccess: func(ctx context.Context, _ ContentUpdate, _ message.Message) { invalidateFor(ctx) },
			OnError: func(ctx context.Context, in ContentUpdate, err error) {
				slog.Error("message_event", "event", "update_failed", "message_id", in.ID, "error", err.Error())
			},
		}),
		Delete: querycache.NewMutation(func(ctx context.Context, id int64) (struct{}, error) {
			return struct{}{}, store.Delete(ctx, id)
		}, querycache.MutationOptions[int64, struct{}]{
			OnSuccess: func(ctx context.Context, _ int64, _ struct{}) { invalidateFor(ctx) },
			OnError: func(ctx context.Context, id int64, err error) {
				slog.Warn("message_event", "event", "delete_failed", "message_id", id, "error", err.Error())
			},
		}),
	}
}

// PendingWrites names the mutations with a call in progress, in the order
// create, update, delete.
func (m *MessageMutations) PendingWrites() []string {
	var out []string
	if m.Create.IsPending() {
		out = append(out, "create")
	}
	if m.Update.IsPending() {
		out = append(out, "update")
	}
	if m.Delete.IsPending() {
		out = append(out, "delete")
	}
	return out
}
