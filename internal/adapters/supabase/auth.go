package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"messageboard/internal/domain/identity"
)

// Auth signs users in against the project's GoTrue endpoints.
type Auth struct {
	c *Client
}

// Auth returns the identity backend for c.
func (c *Client) Auth() *Auth {
	return &Auth{c: c}
}

type wireUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	UserMetadata struct {
		UserName string `json:"user_name"`
	} `json:"user_metadata"`
}

func (u wireUser) identity(token string) identity.Identity {
	return identity.Identity{
		ID:          u.ID,
		Email:       u.Email,
		UserName:    u.UserMetadata.UserName,
		AccessToken: token,
	}
}

type tokenResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int      `json:"expires_in"`
	User        wireUser `json:"user"`
}

// SignInWithPassword exchanges email and password for an access token.
// PRE: email and password are non-empty
// POST: Returns the identity carrying the access token; rejected credentials
// wrap identity.ErrInvalidCredentials
func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (identity.Identity, error) {
	if email == "" || password == "" {
		return identity.Identity{}, identity.ErrInvalidCredentials
	}
	var tr tokenResponse
	err := a.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": email, "password": password},
		token:  a.c.anonKey,
	}, &tr)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnauthorized) {
			return identity.Identity{}, fmt.Errorf("%w: %w", identity.ErrInvalidCredentials, err)
		}
		return identity.Identity{}, err
	}
	if tr.AccessToken == "" || tr.User.ID == "" {
		return identity.Identity{}, fmt.Errorf("supabase: token response missing access token or user")
	}
	return tr.User.identity(tr.AccessToken), nil
}

// GetUser resolves an access token to its user.
// POST: expired or revoked tokens wrap identity.ErrInvalidToken
func (a *Auth) GetUser(ctx context.Context, accessToken string) (identity.Identity, error) {
	if accessToken == "" {
		return identity.Identity{}, identity.ErrInvalidToken
	}
	var u wireUser
	err := a.c.do(ctx, request{
		method: http.MethodGet,
		path:   "/auth/v1/user",
		token:  accessToken,
	}, &u)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
			return identity.Identity{}, fmt.Errorf("%w: %w", identity.ErrInvalidToken, err)
		}
		return identity.Identity{}, err
	}
	return u.identity(accessToken), nil
}

// SignOut revokes the access token's session.
func (a *Auth) SignOut(ctx context.Context, accessToken string) error {
	return a.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		token:  accessToken,
	}, nil)
}
