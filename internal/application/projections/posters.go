package projections

import (
	"context"

	"messageboard/internal/application/querycache"
)

// PostersResult carries the distinct-poster list.
type PostersResult struct {
	State ViewState
	Names []string
	Err   error
}

// PostersDeps holds dependencies for QueryPosters.
type PostersDeps struct {
	Cache *querycache.Cache
	Store MessageReader
}

// QueryPosters reads the names of everyone who has posted.
// POST: Names are returned as the store produced them, without paging or
// client-side de-duplication
func QueryPosters(ctx context.Context, deps PostersDeps) (PostersResult, error) {
	fetch := func(fetchCtx context.Context) ([]string, error) {
		return deps.Store.ListPosterNames(fetchCtx)
	}
	res, err := querycache.Query(ctx, deps.Cache, UsernamesKey(), fetch, querycache.Options{})
	return PostersResult{
		State: viewState(res.HasData, res.Err, len(res.Data)),
		Names: res.Data,
		Err:   res.Err,
	}, err
}
