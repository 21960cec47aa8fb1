package middleware

import (
	"net/http"

	"messageboard/internal/application/session"
)

// SessionCookieName holds the identity backend's access token for the browser.
const SessionCookieName = "board_session"

// sessionMaxAge matches session.DefaultTTL.
const sessionMaxAge = 86400

// Auth returns middleware that resolves the session cookie to a Provider and
// attaches it, with its identity, to the request context.
// It does NOT block signed-out requests; pages decide what a signed-out
// visitor sees.
func Auth(sessions *session.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := SessionToken(r); token != "" {
				if p, ok := sessions.Resolve(r.Context(), token); ok {
					r = r.WithContext(session.NewContext(r.Context(), p))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionToken returns the session cookie value, or "".
func SessionToken(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// SetSessionCookie sets the session cookie on the response.
func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   sessionMaxAge,
	})
}

// ClearSessionCookie removes the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   -1,
	})
}
