// Package session holds per-browser identity state. A Provider answers
// "who is signed in" for one browser session and notifies subscribers when
// that changes; a Registry maps session cookies to Providers.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"messageboard/internal/domain/identity"
)

// Authenticator is the identity backend.
type Authenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (identity.Identity, error)
	GetUser(ctx context.Context, accessToken string) (identity.Identity, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Provider holds the current identity of one browser session.
// INVARIANT: subscribers are notified after every identity change
type Provider struct {
	auth Authenticator

	mu      sync.RWMutex
	current identity.Identity
	subs    map[uint64]chan struct{}
	nextSub uint64
}

// NewProvider creates a signed-out Provider.
func NewProvider(auth Authenticator) *Provider {
	return &Provider{auth: auth, subs: make(map[uint64]chan struct{})}
}

// Current returns the signed-in identity, if any.
func (p *Provider) Current() (identity.Identity, bool) {
	if p == nil {
		return identity.Identity{}, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, !p.current.IsZero()
}

// Init restores the identity behind a previously issued access token.
// PRE: none
// POST: on success the Provider is signed in; an invalid token leaves it
// signed out and returns identity.ErrInvalidToken
func (p *Provider) Init(ctx context.Context, accessToken string) error {
	id, err := p.auth.GetUser(ctx, accessToken)
	if err != nil {
		return err
	}
	p.set(id)
	return nil
}

// SignIn authenticates with email and password.
// POST: Returns the new identity; the Provider is unchanged on error
func (p *Provider) SignIn(ctx context.Context, email, password string) (identity.Identity, error) {
	id, err := p.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return identity.Identity{}, err
	}
	p.set(id)
	return id, nil
}

// SignOut revokes the access token and clears the identity. The identity is
// cleared even when revocation fails.
// POST: Current reports signed out
func (p *Provider) SignOut(ctx context.Context) (identity.Identity, error) {
	p.mu.RLock()
	prev := p.current
	p.mu.RUnlock()
	if prev.IsZero() {
		return identity.Identity{}, nil
	}

	err := p.auth.SignOut(ctx, prev.AccessToken)
	if err != nil {
		slog.Warn("auth_event", "event", "sign_out_revoke_failed", "user_id", prev.ID, "error", err.Error())
	}
	p.set(identity.Identity{})
	return prev, err
}

// Subscribe returns a channel that receives a value after each identity
// change, and a function that ends the subscription. Notifications coalesce.
func (p *Provider) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

func (p *Provider) set(id identity.Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = id
	for _, ch := range p.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

type contextKey struct{}

// NewContext returns a context carrying p and, when signed in, its identity.
func NewContext(ctx context.Context, p *Provider) context.Context {
	ctx = context.WithValue(ctx, contextKey{}, p)
	if id, ok := p.Current(); ok {
		ctx = identity.NewContext(ctx, id)
	}
	return ctx
}

// FromContext returns the Provider carried by ctx. It may be nil; a nil
// Provider reports signed out.
func FromContext(ctx context.Context) *Provider {
	p, _ := ctx.Value(contextKey{}).(*Provider)
	return p
}

// IsInvalidToken reports whether err means a stored token no longer resolves.
func IsInvalidToken(err error) bool {
	return errors.Is(err, identity.ErrInvalidToken)
}
