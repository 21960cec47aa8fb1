package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"messageboard/internal/adapters/http/middleware"
	messageStore "messageboard/internal/adapters/storage/message"
	"messageboard/internal/application/orchestrators"
	"messageboard/internal/application/projections"
	"messageboard/internal/application/session"
)

// deleteFailedAlert is shown when the store refuses a delete.
const deleteFailedAlert = "Failed to delete message. You may not have permission."

// Live socket timing.
const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// feedPage is the data for the feed page and its live fragment.
type feedPage struct {
	Feed  projections.FeedResult
	Alert string
}

// awaitContext bounds how long a page waits on the cache.
func awaitContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), opts.AwaitTimeout)
}

// handleFeed handles GET / (the message feed).
func handleFeed(w http.ResponseWriter, r *http.Request) {
	renderFeed(w, r, http.StatusOK, "")
}

func renderFeed(w http.ResponseWriter, r *http.Request, status int, alert string) {
	ctx, cancel := awaitContext(r)
	defer cancel()
	// A timeout leaves the result in the loading state; the live socket fills it in.
	feed, _ := projections.QueryFeed(ctx, feedDeps())
	renderTemplate(w, r, status, "feed.html", feedPage{Feed: feed, Alert: alert})
}

// parseMessageID reads the {id} path value.
func parseMessageID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// handleDeleteConfirm handles GET /messages/{id}/delete.
// Only the author sees the confirmation; anyone else gets the 404 page.
func handleDeleteConfirm(w http.ResponseWriter, r *http.Request) {
	if !signedIn(r) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	id, ok := parseMessageID(r)
	if !ok {
		handleNotFound(w, r)
		return
	}

	ctx, cancel := awaitContext(r)
	defer cancel()
	feed, _ := projections.QueryFeed(ctx, feedDeps())
	for _, item := range feed.Items {
		if item.ID == id && item.IsOwner {
			renderTemplate(w, r, http.StatusOK, "delete_confirm.html", item)
			return
		}
	}
	handleNotFound(w, r)
}

// handleDeleteMessage handles POST /messages/{id}/delete.
func handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseMessageID(r)
	if !ok {
		handleNotFound(w, r)
		return
	}

	err := orchestrators.ExecuteDeleteMessage(r.Context(), orchestrators.DeleteMessageInput{MessageID: id},
		orchestrators.DeleteMessageDeps{Mutations: deps.Mutations})
	switch {
	case err == nil:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case errors.Is(err, orchestrators.ErrNotSignedIn):
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	case errors.Is(err, messageStore.ErrNotPermitted):
		renderFeed(w, r, http.StatusForbidden, deleteFailedAlert)
	default:
		renderFeed(w, r, http.StatusBadGateway, deleteFailedAlert)
	}
}

// handleFeedLive handles GET /feed/live. It upgrades to a websocket, keeps the
// feed polling while connected and pushes the re-rendered list whenever the
// feed or the viewer's session changes.
func handleFeedLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		return
	}
	defer conn.Close()
	log := middleware.Logger(r.Context())

	sub := projections.SubscribeFeed(feedDeps())
	defer sub.Close()

	provider := session.FromContext(r.Context())
	var sessionChanged <-chan struct{}
	if provider != nil {
		ch, unsubscribe := provider.Subscribe()
		defer unsubscribe()
		sessionChanged = ch
	}

	// The reader only handles control frames and notices the close.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(livePongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(livePongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	var last string
	push := func() error {
		viewer, _ := provider.Current()
		page := feedPage{Feed: projections.BuildFeed(sub.Result(), viewer.ID)}
		html, err := renderFragment(r, "feed_items", page)
		if err != nil {
			return err
		}
		if html == last {
			return nil
		}
		last = html
		conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
		return conn.WriteMessage(websocket.TextMessage, []byte(html))
	}

	ping := time.NewTicker(livePingPeriod)
	defer ping.Stop()

	log.Debug("live_event", "event", "connected")
	defer log.Debug("live_event", "event", "disconnected")

	// The first push waits for the initial fetch like a page render does.
	ctx, cancel := awaitContext(r)
	sub.Await(ctx)
	cancel()
	if err := push(); err != nil {
		log.Warn("live_event", "event", "push_failed", "error", err.Error())
		return
	}
	for {
		select {
		case <-sub.Updates():
		case <-sessionChanged:
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
			continue
		case <-closed:
			return
		}
		if err := push(); err != nil {
			log.Debug("live_event", "event", "push_failed", "error", err.Error())
			return
		}
	}
}
