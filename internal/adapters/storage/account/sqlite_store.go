package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"messageboard/internal/adapters/storage"
	domain "messageboard/internal/domain/account"
)

// timeLayout is fixed width so expiry comparisons work on the stored text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new account SQLiteStore.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const accountColumns = "id, email, user_name, password_hash, created_at, failed_logins, locked_until"

// GetByID retrieves an Account by its ID.
// PRE: id is non-empty
// POST: Returns the entity or ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Account, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM account WHERE id = ?", id)
	return scanAccount(row.Scan)
}

// GetByEmail retrieves an Account by email, ignoring case.
// PRE: email is non-empty
// POST: Returns the entity or ErrNotFound
func (s *SQLiteStore) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM account WHERE email = ?", normalizeEmail(email))
	return scanAccount(row.Scan)
}

// Save persists an Account (insert or update).
// PRE: entity has been validated
// POST: Entity is persisted
func (s *SQLiteStore) Save(ctx context.Context, a domain.Account) error {
	var lockedUntil any
	if !a.LockedUntil.IsZero() {
		lockedUntil = a.LockedUntil.UTC().Format(timeLayout)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO account (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   email=excluded.email, user_name=excluded.user_name,
		   password_hash=excluded.password_hash,
		   failed_logins=excluded.failed_logins, locked_until=excluded.locked_until`,
		a.ID, normalizeEmail(a.Email), a.UserName, a.PasswordHash,
		a.CreatedAt.UTC().Format(timeLayout), a.FailedLogins, lockedUntil)
	if err != nil {
		return fmt.Errorf("save account %s: %w", a.ID, err)
	}
	return nil
}

// Count returns the number of accounts.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM account").Scan(&n)
	return n, err
}

// SaveToken stores an issued access token.
// PRE: token.AccountID references an existing account
// POST: token is persisted
func (s *SQLiteStore) SaveToken(ctx context.Context, t domain.Token) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_token (token, account_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		t.Token, t.AccountID, t.CreatedAt.UTC().Format(timeLayout), t.ExpiresAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// GetToken retrieves an access token.
// PRE: token is non-empty
// POST: Returns the token or ErrNotFound
func (s *SQLiteStore) GetToken(ctx context.Context, token string) (domain.Token, error) {
	var t domain.Token
	var created, expires string
	err := s.db.QueryRowContext(ctx,
		`SELECT token, account_id, created_at, expires_at FROM access_token WHERE token = ?`, token).
		Scan(&t.Token, &t.AccountID, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Token{}, ErrNotFound
	}
	if err != nil {
		return domain.Token{}, err
	}
	t.CreatedAt, _ = time.Parse(timeLayout, created)
	t.ExpiresAt, _ = time.Parse(timeLayout, expires)
	return t, nil
}

// DeleteToken revokes an access token. Revoking an unknown token is not an error.
func (s *SQLiteStore) DeleteToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM access_token WHERE token = ?`, token)
	return err
}

// DeleteExpiredTokens removes tokens that expired at or before now.
// POST: Returns the number of tokens removed
func (s *SQLiteStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM access_token WHERE expires_at <= ?`, now.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// scanAccount extracts an Account from a row scanner function.
func scanAccount(scan func(dest ...any) error) (domain.Account, error) {
	var a domain.Account
	var createdAt string
	var lockedUntil sql.NullString
	err := scan(&a.ID, &a.Email, &a.UserName, &a.PasswordHash, &createdAt, &a.FailedLogins, &lockedUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, ErrNotFound
	}
	if err != nil {
		return domain.Account{}, err
	}
	a.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	if lockedUntil.Valid && lockedUntil.String != "" {
		a.LockedUntil, _ = time.Parse(timeLayout, lockedUntil.String)
	}
	return a, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
