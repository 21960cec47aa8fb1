package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	accountStore "messageboard/internal/adapters/storage/account"
	"messageboard/internal/domain/account"
)

// DevAccount is an account seeded into the local backend.
type DevAccount struct {
	Email    string
	UserName string
	Password string
}

// DevAccountSeedDeps holds dependencies for SeedDevAccounts.
type DevAccountSeedDeps struct {
	Accounts  devAccountLookup
	Registrar devAccountRegistrar
}

type devAccountLookup interface {
	GetByEmail(ctx context.Context, email string) (account.Account, error)
}

type devAccountRegistrar interface {
	Register(ctx context.Context, email, userName, password string) (account.Account, error)
}

// ExecuteSeedDevAccounts creates the configured development accounts.
// It is idempotent and skips accounts that already exist (checked by email).
// PRE: Database is migrated
// POST: every account in defs exists; returns how many were created
func ExecuteSeedDevAccounts(ctx context.Context, defs []DevAccount, deps DevAccountSeedDeps) (int, error) {
	created := 0
	for _, def := range defs {
		_, err := deps.Accounts.GetByEmail(ctx, def.Email)
		if err == nil {
			continue
		}
		if !errors.Is(err, accountStore.ErrNotFound) {
			return created, fmt.Errorf("seed dev account %s: look up: %w", def.Email, err)
		}
		if _, err := deps.Registrar.Register(ctx, def.Email, def.UserName, def.Password); err != nil {
			return created, fmt.Errorf("seed dev account %s: %w", def.Email, err)
		}
		created++
		slog.Info("seed_event", "event", "dev_account_created", "email", def.Email)
	}

	if created > 0 {
		slog.Info("seed_event", "event", "dev_accounts_seeded", "created", created)
	}
	return created, nil
}
