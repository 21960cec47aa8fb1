package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"messageboard/internal/domain/identity"
)

// DefaultTTL is how long a resolved session is trusted before the access
// token is checked against the identity backend again.
const DefaultTTL = 24 * time.Hour

type registryEntry struct {
	p          *Provider
	resolvedAt time.Time
}

// Registry maps session tokens (the access token stored in the browser
// cookie) to Providers. Tokens unknown to the registry are resolved through
// the identity backend, so sessions survive a server restart.
type Registry struct {
	auth Authenticator
	ttl  time.Duration
	now  func() time.Time

	mu        sync.Mutex
	providers map[string]registryEntry
}

// NewRegistry creates an empty Registry. ttl <= 0 means DefaultTTL.
func NewRegistry(auth Authenticator, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		auth:      auth,
		ttl:       ttl,
		now:       time.Now,
		providers: make(map[string]registryEntry),
	}
}

// SignIn authenticates and registers a new Provider.
// POST: Returns the session token to store in the cookie
func (r *Registry) SignIn(ctx context.Context, email, password string) (string, *Provider, error) {
	p := NewProvider(r.auth)
	id, err := p.SignIn(ctx, email, password)
	if err != nil {
		return "", nil, err
	}
	r.mu.Lock()
	r.providers[id.AccessToken] = registryEntry{p: p, resolvedAt: r.now()}
	r.mu.Unlock()
	return id.AccessToken, p, nil
}

// Resolve returns the Provider for token.
// PRE: none
// POST: Returns false for empty, revoked or expired tokens
func (r *Registry) Resolve(ctx context.Context, token string) (*Provider, bool) {
	if token == "" {
		return nil, false
	}
	now := r.now()
	r.mu.Lock()
	e, ok := r.providers[token]
	if ok && now.Sub(e.resolvedAt) < r.ttl {
		r.mu.Unlock()
		return e.p, true
	}
	delete(r.providers, token)
	r.mu.Unlock()

	p := e.p
	if p == nil {
		p = NewProvider(r.auth)
	}
	if err := p.Init(ctx, token); err != nil {
		if !IsInvalidToken(err) {
			slog.Warn("auth_event", "event", "session_restore_failed", "error", err.Error())
		} else if e.p != nil {
			e.p.set(identity.Identity{})
		}
		return nil, false
	}

	r.mu.Lock()
	r.providers[token] = registryEntry{p: p, resolvedAt: now}
	r.mu.Unlock()
	return p, true
}

// SignOut signs the session out and forgets it.
// POST: token no longer resolves from the registry
func (r *Registry) SignOut(ctx context.Context, token string) error {
	r.mu.Lock()
	e, ok := r.providers[token]
	delete(r.providers, token)
	r.mu.Unlock()
	if !ok {
		return r.auth.SignOut(ctx, token)
	}
	_, err := e.p.SignOut(ctx)
	return err
}

// Sweep drops sessions older than the TTL. It returns how many were dropped.
func (r *Registry) Sweep() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for token, e := range r.providers {
		if now.Sub(e.resolvedAt) >= r.ttl {
			delete(r.providers, token)
			n++
		}
	}
	return n
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.providers)
}
