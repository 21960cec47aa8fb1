package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	web "messageboard/internal/adapters/http"
	"messageboard/internal/adapters/http/perf"
	"messageboard/internal/adapters/localauth"
	"messageboard/internal/adapters/storage"
	accountStore "messageboard/internal/adapters/storage/account"
	messageStore "messageboard/internal/adapters/storage/message"
	"messageboard/internal/adapters/supabase"
	"messageboard/internal/application/orchestrators"
	"messageboard/internal/application/querycache"
	"messageboard/internal/application/session"
	"messageboard/internal/config"
)

// housekeepingInterval is how often expired sessions and tokens are dropped.
const housekeepingInterval = 10 * time.Minute

// backend is the remote store and identity provider the board talks to.
type backend struct {
	name     string
	messages messageStore.Store
	auth     session.Authenticator
	purge    func(ctx context.Context) (int64, error) // nil when tokens expire remotely
	close    func() error
}

// openBackend connects to the configured backend.
func openBackend(ctx context.Context, cfg *config.Config, collector *perf.Collector) (*backend, error) {
	if cfg.Backend == config.BackendSupabase {
		client, err := supabase.New(supabase.Config{
			URL:       cfg.Supabase.URL,
			AnonKey:   cfg.Supabase.AnonKey,
			Timeout:   cfg.Remote.Timeout,
			Collector: collector,
		})
		if err != nil {
			return nil, err
		}
		return &backend{
			name:     config.BackendSupabase,
			messages: client.Messages(),
			auth:     client.Auth(),
			close:    func() error { return nil },
		}, nil
	}

	db, err := openDB(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	timedDB := storage.NewTimedDB(db, collector, cfg.SlowQueryMs)
	accounts := accountStore.NewSQLiteStore(timedDB)
	auth := localauth.New(accounts)

	if !cfg.IsProduction() {
		defs := make([]orchestrators.DevAccount, len(cfg.DevAccounts))
		for i, a := range cfg.DevAccounts {
			defs[i] = orchestrators.DevAccount{Email: a.Email, UserName: a.UserName, Password: a.Password}
		}
		seedDeps := orchestrators.DevAccountSeedDeps{Accounts: accounts, Registrar: auth}
		if _, err := orchestrators.ExecuteSeedDevAccounts(ctx, defs, seedDeps); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to seed dev accounts: %w", err)
		}
	}

	return &backend{
		name:     config.BackendSQLite,
		messages: messageStore.NewSQLiteStore(timedDB),
		auth:     auth,
		purge:    auth.PurgeExpired,
		close:    timedDB.Close,
	}, nil
}

// housekeeping drops expired sessions until ctx is done.
func housekeeping(ctx context.Context, b *backend, sessions *session.Registry) {
	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		swept := sessions.Sweep()
		var purged int64
		if b.purge != nil {
			n, err := b.purge(ctx)
			if err != nil {
				slog.Warn("housekeeping_event", "event", "purge_failed", "error", err.Error())
			}
			purged = n
		}
		if swept > 0 || purged > 0 {
			slog.Info("housekeeping_event", "event", "expired_dropped", "sessions", swept, "tokens", purged)
		}
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, level, err := loadConfig()
	if err != nil {
		return err
	}
	if addrFlag != "" {
		cfg.Addr = addrFlag
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Performance instrumentation shared by the request, query and remote layers.
	collector := perf.NewCollector(perf.DefaultRingSize)

	b, err := openBackend(ctx, cfg, collector)
	if err != nil {
		return err
	}
	defer b.close()

	cache := querycache.New(querycache.Config{GCTime: cfg.Cache.GCTime})
	defer cache.Close()
	sessions := session.NewRegistry(b.auth, 0)

	csrfKey, err := cfg.CSRFKeyBytes()
	if err != nil {
		return err
	}

	handler := web.NewMux(web.Deps{
		Messages:  b.messages,
		Sessions:  sessions,
		Cache:     cache,
		Mutations: orchestrators.NewMessageMutations(b.messages, cache),
		Collector: collector,
	}, web.Options{
		CSRFKey:             csrfKey,
		SecureCookies:       cfg.IsProduction(),
		TrustedOrigins:      cfg.TrustedOrigins,
		RateLimitPerSecond:  cfg.RateLimitPerSecond,
		SlowRequestMs:       cfg.SlowRequestMs,
		FeedRefetchInterval: cfg.Feed.RefetchInterval,
		AwaitTimeout:        cfg.Remote.Timeout,
		DebugPages:          cfg.DebugPages || !cfg.IsProduction(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if configPath != "" {
		if err := config.Watch(ctx, configPath, level); err != nil {
			slog.Warn("config_event", "event", "watch_unavailable", "error", err.Error())
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server_event", "event", "starting", "version", version, "addr", cfg.Addr,
			"env", cfg.Env, "backend", b.name, "schema", storage.LatestSchemaVersion())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("server_event", "event", "shutting_down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		housekeeping(gctx, b, sessions)
		return nil
	})
	return g.Wait()
}
