package web

import (
	"errors"
	"net/http"
	"strconv"

	"messageboard/internal/adapters/http/middleware"
	"messageboard/internal/application/orchestrators"
	"messageboard/internal/application/projections"
	"messageboard/internal/domain/identity"
	"messageboard/internal/domain/message"
)

// User-visible texts of the composer and editor.
const (
	composerNotSignedIn = "You must be logged in to post a message"
	composerFailed      = "Error creating message. Please try again."
	composerPosted      = "Message posted!"
	editorUpdated       = "Message updated!"
)

type composerPage struct {
	Content string
	Error   string
	Notice  string
}

// handleComposer handles GET /add-message.
func handleComposer(w http.ResponseWriter, r *http.Request) {
	page := composerPage{}
	if r.URL.Query().Get("posted") == "1" {
		page.Notice = composerPosted
	}
	renderTemplate(w, r, http.StatusOK, "add_message.html", page)
}

// handleCreateMessage handles POST /add-message.
// Success redirects back to an empty composer.
func handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	content := r.FormValue("content")

	_, err := orchestrators.ExecuteCreateMessage(r.Context(), orchestrators.CreateMessageInput{Content: content},
		orchestrators.CreateMessageDeps{Mutations: deps.Mutations})
	switch {
	case err == nil:
		http.Redirect(w, r, "/add-message?posted=1", http.StatusSeeOther)
	case errors.Is(err, orchestrators.ErrNotSignedIn):
		renderTemplate(w, r, http.StatusUnauthorized, "add_message.html", composerPage{Content: content, Error: composerNotSignedIn})
	case errors.Is(err, message.ErrEmptyContent):
		renderTemplate(w, r, http.StatusUnprocessableEntity, "add_message.html", composerPage{Content: content, Error: err.Error()})
	default:
		// The mutation already logged the cause.
		renderTemplate(w, r, http.StatusBadGateway, "add_message.html", composerPage{Content: content, Error: composerFailed})
	}
}

type editorPage struct {
	Editor  projections.UserMessagesResult
	Content string // edit buffer
	Error   string
	Notice  string
}

// loadEditor reads the user's messages with selectedID selected.
func loadEditor(r *http.Request, selectedID int64) editorPage {
	ctx, cancel := awaitContext(r)
	defer cancel()
	res, _ := projections.QueryUserMessages(ctx, projections.UserMessagesQuery{SelectedID: selectedID},
		projections.UserMessagesDeps{Cache: deps.Cache, Store: deps.Messages})
	return editorPage{Editor: res, Content: res.Selected.Content}
}

// parseSelection reads a message ID form or query value; anything invalid
// means no selection.
func parseSelection(v string) int64 {
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// handleEditor handles GET /update-message. ?id= selects a message and fills
// the edit buffer; choosing another discards unsaved edits.
func handleEditor(w http.ResponseWriter, r *http.Request) {
	page := loadEditor(r, parseSelection(r.URL.Query().Get("id")))
	if r.URL.Query().Get("updated") == "1" {
		page.Notice = editorUpdated
	}
	renderTemplate(w, r, http.StatusOK, "update_message.html", page)
}

// handleUpdateMessage handles POST /update-message.
// A submit without a selection changes nothing.
func handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	selected := parseSelection(r.FormValue("message_id"))
	content := r.FormValue("content")

	m, err := orchestrators.ExecuteUpdateMessage(r.Context(),
		orchestrators.UpdateMessageInput{MessageID: selected, Content: content},
		orchestrators.UpdateMessageDeps{Mutations: deps.Mutations})
	if err == nil {
		http.Redirect(w, r, "/update-message?updated=1&id="+strconv.FormatInt(m.ID, 10), http.StatusSeeOther)
		return
	}

	status := http.StatusOK
	page := loadEditor(r, selected)
	page.Content = content
	switch {
	case errors.Is(err, orchestrators.ErrNotSignedIn):
		status = http.StatusUnauthorized
	case errors.Is(err, orchestrators.ErrNoMessageSelected):
		// No-op submit; re-render unchanged.
	case errors.Is(err, message.ErrEmptyContent), errors.Is(err, message.ErrInvalidID):
		status = http.StatusUnprocessableEntity
		page.Error = err.Error()
	case errors.Is(err, orchestrators.ErrNoRowsUpdated):
		status = http.StatusConflict
		page.Error = "Update failed: no rows updated"
	default:
		middleware.Logger(r.Context()).Warn("message_event", "event", "update_rejected", "message_id", selected, "error", err.Error())
		status = http.StatusBadGateway
		page.Error = "Update failed. Please try again."
	}
	renderTemplate(w, r, status, "update_message.html", page)
}

type usersPage struct {
	Posters projections.PostersResult
}

// handleUsers handles GET /users.
func handleUsers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := awaitContext(r)
	defer cancel()
	res, _ := projections.QueryPosters(ctx, projections.PostersDeps{Cache: deps.Cache, Store: deps.Messages})
	renderTemplate(w, r, http.StatusOK, "users.html", usersPage{Posters: res})
}

// signedIn reports whether the request carries an identity.
func signedIn(r *http.Request) bool {
	_, ok := identity.FromContext(r.Context())
	return ok
}
