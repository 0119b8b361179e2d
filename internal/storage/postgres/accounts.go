package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sheikh-saqib/account-ledger-engine/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger-engine/internal/models"
)

const (
	accountByIDQuery    = `SELECT id, email, status FROM accounts WHERE id = $1`
	accountByEmailQuery = `SELECT id, email, status FROM accounts WHERE email = $1`
	upsertAccountQuery  = `INSERT INTO accounts (id, email, status) VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE SET email = excluded.email, status = excluded.status`
)

// Accounts resolves account identities from the accounts table maintained by
// the user-management service.
type Accounts struct {
	db *sql.DB
}

// NewAccounts creates a resolver over db.
func NewAccounts(db *sql.DB) *Accounts {
	return &Accounts{db: db}
}

// ResolveByID looks an account up by id.
func (a *Accounts) ResolveByID(ctx context.Context, id string) (models.Account, error) {
	return a.resolve(ctx, accountByIDQuery, id)
}

// ResolveByEmail looks an account up by its e-mail address, case-insensitively.
func (a *Accounts) ResolveByEmail(ctx context.Context, email string) (models.Account, error) {
	return a.resolve(ctx, accountByEmailQuery, normalizeEmail(email))
}

func (a *Accounts) resolve(ctx context.Context, query, key string) (models.Account, error) {
	var (
		acc    models.Account
		status string
	)
	err := a.db.QueryRowContext(ctx, query, key).Scan(&acc.ID, &acc.Email, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, interfaces.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("%w: resolve account: %v", interfaces.ErrStorage, err)
	}
	acc.Status = models.AccountStatus(status)
	return acc, nil
}

// Upsert mirrors an account from the user-management service into the accounts table.
func (a *Accounts) Upsert(ctx context.Context, acc models.Account) error {
	if acc.Status == "" {
		acc.Status = models.AccountStatusActive
	}
	_, err := a.db.ExecContext(ctx, upsertAccountQuery, acc.ID, normalizeEmail(acc.Email), string(acc.Status))
	if err != nil {
		return fmt.Errorf("%w: upsert account %s: %v", interfaces.ErrStorage, acc.ID, err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ interfaces.AccountResolver = (*Accounts)(nil)
