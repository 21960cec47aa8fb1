package orchestrators

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	messageStore "messageboard/internal/adapters/storage/message"
	"messageboard/internal/application/projections"
	"messageboard/internal/application/querycache"
	"messageboard/internal/domain/identity"
	"messageboard/internal/domain/message"
)

// --- in-memory test doubles ---

// memMessageStore applies the hosted store's row rules in memory.
type memMessageStore struct {
	mu     sync.Mutex
	rows   []message.Message // oldest first
	nextID int64
	now    time.Time

	listCalls   int
	writeCalls  int
	deleteError error
}

func newMemMessageStore() *memMessageStore {
	return &memMessageStore{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (s *memMessageStore) List(_ context.Context) ([]message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	out := make([]message.Message, 0, len(s.rows))
	for i := len(s.rows) - 1; i >= 0; i-- {
		out = append(out, s.rows[i])
	}
	return out, nil
}

func (s *memMessageStore) ListByAuthor(_ context.Context, userID string) ([]message.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []message.Summary
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].UserID == userID {
			out = append(out, s.rows[i].Summary())
		}
	}
	return out, nil
}

func (s *memMessageStore) ListPosterNames(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.rows {
		out = append(out, m.UserName)
	}
	return out, nil
}

func (s *memMessageStore) Insert(ctx context.Context, d message.Draft) (message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeCalls++
	if caller, ok := identity.FromContext(ctx); !ok || caller.ID != d.UserID {
		return message.Message{}, messageStore.ErrNotPermitted
	}
	s.nextID++
	s.now = s.now.Add(time.Minute)
	m := message.Message{ID: s.nextID, Content: d.Content, CreatedAt: s.now, UserName: d.UserName, UserID: d.UserID}
	s.rows = append(s.rows, m)
	return m, nil
}

func (s *memMessageStore) UpdateContent(ctx context.Context, id int64, content string) ([]message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeCalls++
	caller, _ := identity.FromContext(ctx)
	for i := range s.rows {
		if s.rows[i].ID == id && s.rows[i].UserID == caller.ID {
			s.rows[i].Content = content
			return []message.Message{s.rows[i]}, nil
		}
	}
	return nil, nil
}

func (s *memMessageStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeCalls++
	if s.deleteError != nil {
		return s.deleteError
	}
	caller, _ := identity.FromContext(ctx)
	for i := range s.rows {
		if s.rows[i].ID == id && s.rows[i].UserID == caller.ID {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	return messageStore.ErrNotPermitted
}

func (s *memMessageStore) counts() (list, writes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls, s.writeCalls
}

// --- helpers ---

type fixture struct {
	store     *memMessageStore
	cache     *querycache.Cache
	mutations *MessageMutations
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemMessageStore()
	cache := querycache.New(querycache.Config{})
	t.Cleanup(cache.Close)
	return &fixture{store: store, cache: cache, mutations: NewMessageMutations(store, cache)}
}

func as(id identity.Identity) context.Context {
	return identity.NewContext(context.Background(), id)
}

var (
	alice = identity.Identity{ID: "u1", Email: "alice@example.com", UserName: "alice", AccessToken: "t1"}
	bob   = identity.Identity{ID: "u2", Email: "bob@example.com", AccessToken: "t2"}
)

func (f *fixture) feed(t *testing.T, ctx context.Context) projections.FeedResult {
	t.Helper()
	res, err := projections.QueryFeed(ctx, projections.FeedDeps{Cache: f.cache, Store: f.store})
	if err != nil {
		t.Fatalf("QueryFeed: %v", err)
	}
	return res
}

// watchFeed holds a subscription on the feed so invalidations refetch.
func (f *fixture) watchFeed(t *testing.T) *querycache.Subscription[[]message.Message] {
	t.Helper()
	sub := querycache.Subscribe(f.cache, projections.MessagesKey(), func(ctx context.Context) ([]message.Message, error) {
		return f.store.List(ctx)
	}, querycache.Options{StaleTime: time.Hour})
	t.Cleanup(sub.Close)
	if err := sub.Await(context.Background()); err != nil {
		t.Fatal(err)
	}
	return sub
}

func (f *fixture) create(t *testing.T, who identity.Identity, content string) message.Message {
	t.Helper()
	m, err := ExecuteCreateMessage(as(who), CreateMessageInput{Content: content}, CreateMessageDeps{Mutations: f.mutations})
	if err != nil {
		t.Fatalf("create %q: %v", content, err)
	}
	return m
}

// --- tests ---

// TestCreateMessage_OwnerControlOnlyForAuthor creates a message and checks
// the refetched feed marks it as owned only for its author.
func TestCreateMessage_OwnerControlOnlyForAuthor(t *testing.T) {
	f := newFixture(t)
	f.create(t, bob, "earlier")
	m := f.create(t, alice, "hello board")
	if m.UserName != "alice" || m.UserID != "u1" {
		t.Errorf("created = %+v", m)
	}

	for _, tt := range []struct {
		name   string
		ctx    context.Context
		owners []bool
	}{
		{"author", as(alice), []bool{true, false}},
		{"other user", as(bob), []bool{false, true}},
		{"signed out", context.Background(), []bool{false, false}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			res := f.feed(t, tt.ctx)
			if res.State != projections.ViewList || len(res.Items) != 2 {
				t.Fatalf("feed = %+v", res)
			}
			if res.Items[0].Content != "hello board" {
				t.Errorf("newest first: got %q", res.Items[0].Content)
			}
			for i, want := range tt.owners {
				if res.Items[i].IsOwner != want {
					t.Errorf("item %d IsOwner = %v, want %v", i, res.Items[i].IsOwner, want)
				}
			}
		})
	}
}

// TestCreateMessage_AuthorNameFallback tests the display name chain.
func TestCreateMessage_AuthorNameFallback(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		id   identity.Identity
		want string
	}{
		{identity.Identity{ID: "a", UserName: "named", Email: "e@x.com"}, "named"},
		{identity.Identity{ID: "b", Email: "e@x.com"}, "e@x.com"},
		{identity.Identity{ID: "c"}, message.AnonymousName},
	}
	for _, tt := range tests {
		if got := f.create(t, tt.id, "x").UserName; got != tt.want {
			t.Errorf("UserName for %+v = %q, want %q", tt.id, got, tt.want)
		}
	}
}

// TestCreateMessage_Preconditions tests that rejected drafts never reach the store.
func TestCreateMessage_Preconditions(t *testing.T) {
	f := newFixture(t)
	deps := CreateMessageDeps{Mutations: f.mutations}

	if _, err := ExecuteCreateMessage(context.Background(), CreateMessageInput{Content: "hi"}, deps); !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("signed out: %v, want ErrNotSignedIn", err)
	}
	if _, err := ExecuteCreateMessage(as(alice), CreateMessageInput{Content: "   "}, deps); !errors.Is(err, message.ErrEmptyContent) {
		t.Errorf("blank: %v, want ErrEmptyContent", err)
	}
	if _, writes := f.store.counts(); writes != 0 {
		t.Errorf("store writes = %d, want 0", writes)
	}
}

// TestCreateMessage_NoInvalidation tests that creating leaves the feed to its poll.
func TestCreateMessage_NoInvalidation(t *testing.T) {
	f := newFixture(t)
	sub := f.watchFeed(t)
	before, _ := f.store.counts()

	f.create(t, alice, "quiet")
	if err := sub.Await(context.Background()); err != nil {
		t.Fatal(err)
	}
	if after, _ := f.store.counts(); after != before {
		t.Errorf("feed refetched after create: %d -> %d", before, after)
	}
}

// TestUpdateMessage_Success tests update and invalidation.
func TestUpdateMessage_Success(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, alice, "draft")
	sub := f.watchFeed(t)
	before, _ := f.store.counts()

	got, err := ExecuteUpdateMessage(as(alice), UpdateMessageInput{MessageID: m.ID, Content: "final"}, UpdateMessageDeps{Mutations: f.mutations})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Content != "final" {
		t.Errorf("updated content = %q", got.Content)
	}
	if err := sub.Await(context.Background()); err != nil {
		t.Fatal(err)
	}
	if after, _ := f.store.counts(); after != before+1 {
		t.Errorf("feed fetches %d -> %d, want one refetch", before, after)
	}
	if res := sub.Result(); res.Data[0].Content != "final" {
		t.Errorf("feed content = %q", res.Data[0].Content)
	}
}

// TestUpdateMessage_NoSelection tests that an empty selection is a no-op.
func TestUpdateMessage_NoSelection(t *testing.T) {
	f := newFixture(t)
	_, err := ExecuteUpdateMessage(as(alice), UpdateMessageInput{Content: "text"}, UpdateMessageDeps{Mutations: f.mutations})
	if !errors.Is(err, ErrNoMessageSelected) {
		t.Errorf("error = %v, want ErrNoMessageSelected", err)
	}
	if _, writes := f.store.counts(); writes != 0 {
		t.Errorf("store writes = %d, want 0", writes)
	}
}

// TestUpdateMessage_ZeroRows tests that updating someone else's message
// fails without invalidating.
func TestUpdateMessage_ZeroRows(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, alice, "mine")
	sub := f.watchFeed(t)
	before, _ := f.store.counts()

	_, err := ExecuteUpdateMessage(as(bob), UpdateMessageInput{MessageID: m.ID, Content: "hijack"}, UpdateMessageDeps{Mutations: f.mutations})
	if !errors.Is(err, ErrNoRowsUpdated) {
		t.Fatalf("error = %v, want ErrNoRowsUpdated", err)
	}
	if err.Error() != "update failed: no rows updated" {
		t.Errorf("message = %q", err.Error())
	}
	if err := sub.Await(context.Background()); err != nil {
		t.Fatal(err)
	}
	if after, _ := f.store.counts(); after != before {
		t.Errorf("feed refetched after failed update: %d -> %d", before, after)
	}
}

// TestUpdateMessage_AfterConcurrentDelete tests the editor racing a delete:
// the update reports zero rows and the next poll drops the message.
func TestUpdateMessage_AfterConcurrentDelete(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, alice, "short-lived")
	if res := f.feed(t, as(alice)); len(res.Items) != 1 {
		t.Fatalf("feed = %+v", res)
	}

	if err := f.store.Delete(as(alice), m.ID); err != nil {
		t.Fatal(err)
	}
	_, err := ExecuteUpdateMessage(as(alice), UpdateMessageInput{MessageID: m.ID, Content: "too late"}, UpdateMessageDeps{Mutations: f.mutations})
	if !errors.Is(err, ErrNoRowsUpdated) {
		t.Fatalf("error = %v, want ErrNoRowsUpdated", err)
	}

	if res := f.feed(t, as(alice)); res.State != projections.ViewEmpty {
		t.Errorf("feed after poll = %+v, want empty", res)
	}
}

// TestDeleteMessage tests owner-only deletion and cache behaviour.
func TestDeleteMessage(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, alice, "delete me")
	sub := f.watchFeed(t)
	deps := DeleteMessageDeps{Mutations: f.mutations}

	before, _ := f.store.counts()
	if err := ExecuteDeleteMessage(as(bob), DeleteMessageInput{MessageID: m.ID}, deps); !errors.Is(err, messageStore.ErrNotPermitted) {
		t.Fatalf("non-owner delete = %v, want ErrNotPermitted", err)
	}
	sub.Await(context.Background())
	if after, _ := f.store.counts(); after != before {
		t.Errorf("failed delete refetched the feed")
	}
	if len(sub.Result().Data) != 1 {
		t.Errorf("failed delete changed cached data")
	}

	if err := ExecuteDeleteMessage(as(alice), DeleteMessageInput{MessageID: m.ID}, deps); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if err := sub.Await(context.Background()); err != nil {
		t.Fatal(err)
	}
	if res := sub.Result(); len(res.Data) != 0 {
		t.Errorf("feed after delete = %+v", res.Data)
	}

	if err := ExecuteDeleteMessage(context.Background(), DeleteMessageInput{MessageID: m.ID}, deps); !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("signed-out delete = %v", err)
	}
	if f.mutations.Delete.IsPending() {
		t.Error("delete still pending")
	}
}

// TestDeleteMessage_StoreError tests that a transport failure leaves the cache alone.
func TestDeleteMessage_StoreError(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, alice, "kept")
	sub := f.watchFeed(t)
	f.store.deleteError = errors.New("connection reset")

	if err := ExecuteDeleteMessage(as(alice), DeleteMessageInput{MessageID: m.ID}, DeleteMessageDeps{Mutations: f.mutations}); err == nil {
		t.Fatal("expected error")
	}
	if res := sub.Result(); res.State != querycache.StateFresh || len(res.Data) != 1 {
		t.Errorf("cache after failed delete = %+v", res)
	}
}

// gatedStore holds every Insert until gate closes.
type gatedStore struct {
	*memMessageStore
	started chan struct{}
	gate    chan struct{}
}

func (s *gatedStore) Insert(ctx context.Context, d message.Draft) (message.Message, error) {
	close(s.started)
	<-s.gate
	return s.memMessageStore.Insert(ctx, d)
}

// TestMessageMutations_PendingWrites tests that a write is reported while it
// runs and cleared once it settles.
func TestMessageMutations_PendingWrites(t *testing.T) {
	store := &gatedStore{memMessageStore: newMemMessageStore(), started: make(chan struct{}), gate: make(chan struct{})}
	cache := querycache.New(querycache.Config{})
	t.Cleanup(cache.Close)
	mutations := NewMessageMutations(store, cache)

	if got := mutations.PendingWrites(); len(got) != 0 {
		t.Fatalf("PendingWrites before any call = %v", got)
	}

	done := make(chan error, 1)
	go func() {
		_, err := ExecuteCreateMessage(as(alice), CreateMessageInput{Content: "slow"}, CreateMessageDeps{Mutations: mutations})
		done <- err
	}()
	<-store.started
	if got := mutations.PendingWrites(); len(got) != 1 || got[0] != "create" {
		t.Errorf("PendingWrites during insert = %v, want [create]", got)
	}

	close(store.gate)
	if err := <-done; err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := mutations.PendingWrites(); len(got) != 0 {
		t.Errorf("PendingWrites after insert = %v", got)
	}
}
