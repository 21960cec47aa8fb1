package projections

import (
	"context"

	"messageboard/internal/application/querycache"
	"messageboard/internal/domain/identity"
	"messageboard/internal/domain/message"
)

// UserMessagesQuery carries the editor's current selection.
type UserMessagesQuery struct {
	SelectedID int64 // zero means nothing selected
}

// EditorOption is one entry of the editor's message selector.
type EditorOption struct {
	ID       int64
	Preview  string
	Selected bool
}

// UserMessagesResult carries the editor view.
type UserMessagesResult struct {
	SignedIn bool
	State    ViewState
	Options  []EditorOption
	Err      error

	// Selected is the message whose content fills the edit buffer.
	Selected     message.Summary
	HasSelection bool
}

// UserMessagesDeps holds dependencies for QueryUserMessages.
type UserMessagesDeps struct {
	Cache *querycache.Cache
	Store MessageReader
}

// QueryUserMessages reads the signed-in user's messages for the editor.
// PRE: ctx carries the identity when signed in
// POST: Signed-out viewers get SignedIn=false and no fetch is made; a
// selection that is not among the user's messages is dropped
func QueryUserMessages(ctx context.Context, query UserMessagesQuery, deps UserMessagesDeps) (UserMessagesResult, error) {
	id, ok := identity.FromContext(ctx)
	if !ok {
		return UserMessagesResult{}, nil
	}

	fetch := func(fetchCtx context.Context) ([]message.Summary, error) {
		return deps.Store.ListByAuthor(identity.NewContext(fetchCtx, id), id.ID)
	}
	res, err := querycache.Query(ctx, deps.Cache, UserMessagesKey(id.ID), fetch, querycache.Options{})

	out := UserMessagesResult{
		SignedIn: true,
		State:    viewState(res.HasData, res.Err, len(res.Data)),
		Err:      res.Err,
	}
	for _, s := range res.Data {
		selected := s.ID == query.SelectedID
		if selected {
			out.Selected = s
			out.HasSelection = true
		}
		out.Options = append(out.Options, EditorOption{ID: s.ID, Preview: s.Preview(), Selected: selected})
	}
	return out, err
}
