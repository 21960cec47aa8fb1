package web

import (
	"io/fs"
	"net/http"
	"time"

	"messageboard/internal/adapters/http/middleware"
	"messageboard/internal/adapters/http/perf"
	messageStore "messageboard/internal/adapters/storage/message"
	"messageboard/internal/application/orchestrators"
	"messageboard/internal/application/projections"
	"messageboard/internal/application/querycache"
	"messageboard/internal/application/session"
)

// Deps holds the services the handlers use.
type Deps struct {
	Messages  messageStore.Store
	Sessions  *session.Registry
	Cache     *querycache.Cache
	Mutations *orchestrators.MessageMutations
	Collector *perf.Collector // optional
}

// Options tunes the HTTP surface.
type Options struct {
	CSRFKey        []byte // 32 bytes
	SecureCookies  bool
	TrustedOrigins []string

	// RateLimitPerSecond controls the per-IP rate limit. Zero selects 10.
	RateLimitPerSecond int
	SlowRequestMs      int

	// FeedRefetchInterval is how often live viewers see the feed polled.
	FeedRefetchInterval time.Duration
	// AwaitTimeout bounds how long a page waits for a fetch before it renders
	// the loading state. Zero selects defaultAwaitTimeout.
	AwaitTimeout time.Duration

	DebugPages bool // serve /debug/perf
}

const defaultAwaitTimeout = 5 * time.Second

// Global dependencies (set by NewMux)
var (
	deps Deps
	opts Options
)

// NewMux wires HTTP handlers for the board.
// PRE: d.Messages, d.Sessions, d.Cache and d.Mutations are non-nil;
// o.CSRFKey is 32 bytes
// POST: Returns the fully wrapped handler
func NewMux(d Deps, o Options) http.Handler {
	deps = d
	opts = o
	if opts.RateLimitPerSecond <= 0 {
		opts.RateLimitPerSecond = 10
	}
	if opts.AwaitTimeout <= 0 {
		opts.AwaitTimeout = defaultAwaitTimeout
	}

	mux := http.NewServeMux()
	registerRoutes(mux)

	limiter := middleware.NewRateLimiter(opts.RateLimitPerSecond, time.Second)

	// Apply middleware: RequestID -> Timing -> RateLimit -> Auth -> CSRF -> SecurityHeaders -> Mux
	return middleware.Chain(mux,
		middleware.SecurityHeaders,
		middleware.CSRF(middleware.CSRFOptions{
			Key:            opts.CSRFKey,
			Secure:         opts.SecureCookies,
			TrustedOrigins: opts.TrustedOrigins,
		}),
		middleware.Auth(deps.Sessions),
		middleware.RateLimit(limiter),
		middleware.Timing(deps.Collector, opts.SlowRequestMs),
		middleware.RequestID,
	)
}

func registerRoutes(mux *http.ServeMux) {
	static, _ := fs.Sub(assets, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	mux.HandleFunc("GET /{$}", handleFeed)
	mux.HandleFunc("GET /feed/live", handleFeedLive)
	mux.HandleFunc("GET /messages/{id}/delete", handleDeleteConfirm)
	mux.HandleFunc("POST /messages/{id}/delete", handleDeleteMessage)

	mux.HandleFunc("GET /add-message", handleComposer)
	mux.HandleFunc("POST /add-message", handleCreateMessage)
	mux.HandleFunc("GET /update-message", handleEditor)
	mux.HandleFunc("POST /update-message", handleUpdateMessage)

	// Reachable by URL only; not linked from the navigation.
	mux.HandleFunc("GET /users", handleUsers)

	mux.HandleFunc("GET /login", handleLoginForm)
	mux.HandleFunc("POST /login", handleLogin)
	mux.HandleFunc("POST /logout", handleLogout)

	if opts.DebugPages {
		mux.HandleFunc("GET /debug/perf", handleDebugPerf)
	}

	mux.HandleFunc("/", handleNotFound)
}

func feedDeps() projections.FeedDeps {
	return projections.FeedDeps{
		Cache:           deps.Cache,
		Store:           deps.Messages,
		RefetchInterval: opts.FeedRefetchInterval,
	}
}
