package web

import (
	"errors"
	"net/http"

	"messageboard/internal/adapters/http/middleware"
	"messageboard/internal/application/orchestrators"
	"messageboard/internal/domain/identity"
)

type loginPage struct {
	Email string
	Error string
}

// handleLoginForm handles GET /login.
func handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if signedIn(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	renderTemplate(w, r, http.StatusOK, "login.html", loginPage{})
}

// handleLogin handles POST /login.
func handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	input := orchestrators.SignInInput{
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
	}

	result, err := orchestrators.ExecuteSignIn(r.Context(), input, orchestrators.SignInDeps{Sessions: deps.Sessions})
	if err != nil {
		status := http.StatusUnauthorized
		msg := err.Error()
		if !errors.Is(err, identity.ErrInvalidCredentials) && !errors.Is(err, identity.ErrAccountLocked) {
			status = http.StatusBadGateway
			msg = "Sign-in is unavailable. Please try again."
		}
		renderTemplate(w, r, status, "login.html", loginPage{Email: input.Email, Error: msg})
		return
	}

	middleware.SetSessionCookie(w, result.Token, opts.SecureCookies)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleLogout handles POST /logout. The cookie is cleared even when the
// identity backend could not revoke the token.
func handleLogout(w http.ResponseWriter, r *http.Request) {
	token := middleware.SessionToken(r)
	_ = orchestrators.ExecuteSignOut(r.Context(), orchestrators.SignOutInput{Token: token},
		orchestrators.SignOutDeps{Sessions: deps.Sessions, Cache: deps.Cache})

	middleware.ClearSessionCookie(w, opts.SecureCookies)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
