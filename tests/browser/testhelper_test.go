package browser_test

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"

	_ "modernc.org/sqlite"

	web "messageboard/internal/adapters/http"
	"messageboard/internal/adapters/localauth"
	"messageboard/internal/adapters/storage"
	accountStore "messageboard/internal/adapters/storage/account"
	messageStore "messageboard/internal/adapters/storage/message"
	"messageboard/internal/application/orchestrators"
	"messageboard/internal/application/querycache"
	"messageboard/internal/application/session"
)

const testPassword = "TestPass123!"

// testApp holds the running test server and Playwright handles.
type testApp struct {
	BaseURL  string
	DB       *sql.DB
	Server   *http.Server
	PW       *playwright.Playwright
	Browser  playwright.Browser
	Messages *messageStore.SQLiteStore
}

// newTestApp creates a fully wired board with a temp SQLite DB and starts an HTTP server.
func newTestApp(t *testing.T) *testApp {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	if err := storage.MigrateDB(db, dbPath); err != nil {
		t.Fatalf("failed to migrate test DB: %v", err)
	}

	accounts := accountStore.NewSQLiteStore(db)
	auth := localauth.New(accounts)
	ctx := context.Background()
	_, err = orchestrators.ExecuteSeedDevAccounts(ctx, []orchestrators.DevAccount{
		{Email: "alice@test.com", UserName: "alice", Password: testPassword},
		{Email: "bob@test.com", UserName: "bob", Password: testPassword},
	}, orchestrators.DevAccountSeedDeps{Accounts: accounts, Registrar: auth})
	if err != nil {
		t.Fatalf("failed to seed accounts: %v", err)
	}

	messages := messageStore.NewSQLiteStore(db)
	cache := querycache.New(querycache.Config{})

	// Find a free port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	mux := web.NewMux(web.Deps{
		Messages:  messages,
		Sessions:  session.NewRegistry(auth, 0),
		Cache:     cache,
		Mutations: orchestrators.NewMessageMutations(messages, cache),
	}, web.Options{
		CSRFKey:             []byte("browser-tests-csrf-key-32-bytes!"),
		RateLimitPerSecond:  1000,
		FeedRefetchInterval: 250 * time.Millisecond,
	})
	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("test server error: %v", err)
		}
	}()

	// Wait for server to be ready
	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	for i := 0; i < 50; i++ {
		resp, err := http.Get(baseURL + "/login")
		if err == nil {
			resp.Body.Close()
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	pw, err := playwright.Run()
	if err != nil {
		srv.Close()
		t.Skipf("playwright unavailable: %v", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		pw.Stop()
		srv.Close()
		t.Skipf("chromium unavailable: %v", err)
	}

	app := &testApp{
		BaseURL:  baseURL,
		DB:       db,
		Server:   srv,
		PW:       pw,
		Browser:  browser,
		Messages: messages,
	}

	t.Cleanup(func() {
		browser.Close()
		pw.Stop()
		srv.Close()
		cache.Close()
		db.Close()
	})

	return app
}

// newPage creates a new browser page (tab) in its own context, so each page
// has its own cookies.
func (a *testApp) newPage(t *testing.T) playwright.Page {
	t.Helper()
	bctx, err := a.Browser.NewContext()
	if err != nil {
		t.Fatalf("failed to create browser context: %v", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		t.Fatalf("failed to create page: %v", err)
	}
	t.Cleanup(func() { bctx.Close() })
	return page
}

// login signs in as the given seeded user and waits for the feed.
func (a *testApp) login(t *testing.T, page playwright.Page, name string) {
	t.Helper()
	if _, err := page.Goto(a.BaseURL + "/login"); err != nil {
		t.Fatalf("failed to navigate to login: %v", err)
	}
	if err := page.Locator("input[name=email]").Fill(name + "@test.com"); err != nil {
		t.Fatalf("failed to fill email: %v", err)
	}
	if err := page.Locator("input[name=password]").Fill(testPassword); err != nil {
		t.Fatalf("failed to fill password: %v", err)
	}
	if err := page.Locator(`form[action="/login"] button[type=submit]`).Click(); err != nil {
		t.Fatalf("failed to click sign in: %v", err)
	}
	if err := page.WaitForURL(a.BaseURL+"/", playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(10000),
	}); err != nil {
		t.Fatalf("sign in did not redirect to the feed: %v", err)
	}
}
