package localauth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"messageboard/internal/adapters/storage"
	accountStore "messageboard/internal/adapters/storage/account"
	"messageboard/internal/domain/account"
	"messageboard/internal/domain/identity"
)

const testPassword = "correct horse battery"

func newTestAuthenticator(t *testing.T) (*Authenticator, *time.Time) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := storage.MigrateDB(db, ":memory:"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := New(accountStore.NewSQLiteStore(db))
	a.now = func() time.Time { return now }
	return a, &now
}

// TestAuthenticator_SignInRoundTrip tests sign-in, token resolution and sign-out.
func TestAuthenticator_SignInRoundTrip(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	ctx := context.Background()

	acct, err := a.Register(ctx, "alice@example.com", "alice", testPassword)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	id, err := a.SignInWithPassword(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("SignInWithPassword: %v", err)
	}
	if id.ID != acct.ID || id.UserName != "alice" || id.AccessToken == "" {
		t.Errorf("identity = %+v", id)
	}

	got, err := a.GetUser(ctx, id.AccessToken)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got != id {
		t.Errorf("GetUser = %+v, want %+v", got, id)
	}

	if err := a.SignOut(ctx, id.AccessToken); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if _, err := a.GetUser(ctx, id.AccessToken); !errors.Is(err, identity.ErrInvalidToken) {
		t.Errorf("GetUser after sign-out = %v, want ErrInvalidToken", err)
	}
}

// TestAuthenticator_InvalidCredentials tests rejected sign-ins.
func TestAuthenticator_InvalidCredentials(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	ctx := context.Background()
	if _, err := a.Register(ctx, "bob@example.com", "", testPassword); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name, email, password string
	}{
		{"unknown email", "nobody@example.com", testPassword},
		{"wrong password", "bob@example.com", "definitely wrong"},
		{"empty password", "bob@example.com", ""},
		{"empty email", "", testPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.SignInWithPassword(ctx, tt.email, tt.password); !errors.Is(err, identity.ErrInvalidCredentials) {
				t.Errorf("error = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

// TestAuthenticator_Lockout tests that repeated failures lock the account.
func TestAuthenticator_Lockout(t *testing.T) {
	a, now := newTestAuthenticator(t)
	ctx := context.Background()
	if _, err := a.Register(ctx, "carol@example.com", "carol", testPassword); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < account.MaxFailedLogins; i++ {
		a.SignInWithPassword(ctx, "carol@example.com", "wrong password!")
	}
	if _, err := a.SignInWithPassword(ctx, "carol@example.com", testPassword); !errors.Is(err, identity.ErrAccountLocked) {
		t.Fatalf("error = %v, want ErrAccountLocked", err)
	}

	*now = now.Add(account.LockoutDuration)
	if _, err := a.SignInWithPassword(ctx, "carol@example.com", testPassword); err != nil {
		t.Errorf("sign-in after lockout expiry: %v", err)
	}
}

// TestAuthenticator_TokenExpiry tests that expired tokens stop resolving and are purged.
func TestAuthenticator_TokenExpiry(t *testing.T) {
	a, now := newTestAuthenticator(t)
	ctx := context.Background()
	if _, err := a.Register(ctx, "dan@example.com", "dan", testPassword); err != nil {
		t.Fatal(err)
	}
	id, err := a.SignInWithPassword(ctx, "dan@example.com", testPassword)
	if err != nil {
		t.Fatal(err)
	}

	*now = now.Add(account.TokenTTL)
	if _, err := a.GetUser(ctx, id.AccessToken); !errors.Is(err, identity.ErrInvalidToken) {
		t.Errorf("expired token error = %v, want ErrInvalidToken", err)
	}
	if n, err := a.PurgeExpired(ctx); err != nil || n != 1 {
		t.Errorf("PurgeExpired = %d, %v; want 1", n, err)
	}
	if _, err := a.GetUser(ctx, ""); !errors.Is(err, identity.ErrInvalidToken) {
		t.Errorf("empty token error = %v", err)
	}
}
