package projections

import (
	"context"

	"messageboard/internal/domain/message"
)

// MessageReader is the read side of the message store.
type MessageReader interface {
	List(ctx context.Context) ([]message.Message, error)
	ListByAuthor(ctx context.Context, userID string) ([]message.Summary, error)
	ListPosterNames(ctx context.Context) ([]string, error)
}

// ViewState is what a list view should render.
type ViewState string

const (
	ViewLoading ViewState = "loading"
	ViewError   ViewState = "error"
	ViewEmpty   ViewState = "empty"
	ViewList    ViewState = "list"
)

// viewState picks the render state. An error wins over cached data.
func viewState(hasData bool, err error, n int) ViewState {
	switch {
	case err != nil:
		return ViewError
	case !hasData:
		return ViewLoading
	case n == 0:
		return ViewEmpty
	}
	return ViewList
}
