package projections

import (
	"context"
	"time"

	"messageboard/internal/application/querycache"
	"messageboard/internal/domain/identity"
	"messageboard/internal/domain/message"
)

// FeedRefetchInterval is how often the feed is polled while a live viewer
// is connected.
const FeedRefetchInterval = 5 * time.Second

// FeedItem is one message as shown to a viewer.
type FeedItem struct {
	message.Message
	IsOwner bool // the viewer authored it and may delete it
}

// FeedResult carries the feed view.
type FeedResult struct {
	State      ViewState
	Items      []FeedItem
	Err        error
	IsFetching bool
	UpdatedAt  time.Time
}

// FeedDeps holds dependencies for the feed.
type FeedDeps struct {
	Cache           *querycache.Cache
	Store           MessageReader
	RefetchInterval time.Duration // live subscriptions only; zero selects FeedRefetchInterval
}

func feedFetcher(store MessageReader) querycache.Fetcher[[]message.Message] {
	return func(ctx context.Context) ([]message.Message, error) {
		return store.List(ctx)
	}
}

// QueryFeed reads the all-messages feed through the cache and marks the
// viewer's own messages.
// PRE: ctx may carry the viewer's identity
// POST: Returns the settled feed; a non-nil error means ctx ended first and
// the result is in the loading state
// INVARIANT: IsOwner is true only when the viewer's ID equals the author ID
func QueryFeed(ctx context.Context, deps FeedDeps) (FeedResult, error) {
	res, err := querycache.Query(ctx, deps.Cache, MessagesKey(), feedFetcher(deps.Store), querycache.Options{})
	viewer, _ := identity.FromContext(ctx)
	return BuildFeed(res, viewer.ID), err
}

// SubscribeFeed opens a polling subscription on the feed for a live viewer.
// The caller must Close it.
func SubscribeFeed(deps FeedDeps) *querycache.Subscription[[]message.Message] {
	interval := deps.RefetchInterval
	if interval <= 0 {
		interval = FeedRefetchInterval
	}
	return querycache.Subscribe(deps.Cache, MessagesKey(), feedFetcher(deps.Store), querycache.Options{RefetchInterval: interval})
}

// BuildFeed turns a cache result into the view for viewerID.
func BuildFeed(res querycache.Result[[]message.Message], viewerID string) FeedResult {
	out := FeedResult{
		State:      viewState(res.HasData, res.Err, len(res.Data)),
		Err:        res.Err,
		IsFetching: res.IsFetching,
		UpdatedAt:  res.UpdatedAt,
	}
	if len(res.Data) > 0 {
		out.Items = make([]FeedItem, len(res.Data))
		for i, m := range res.Data {
			out.Items[i] = FeedItem{Message: m, IsOwner: m.IsOwnedBy(viewerID)}
		}
	}
	return out
}
