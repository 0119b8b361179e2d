// Package accounts provides an in-memory AccountResolver for development and tests.
package accounts

import (
	"context"
	"strings"
	"sync"

	"github.com/sheikh-saqib/account-ledger-engine/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger-engine/internal/models"
)

// Directory is a thread-safe in-memory account directory.
type Directory struct {
	mu      sync.RWMutex
	byID    map[string]models.Account
	byEmail map[string]string // normalized email -> id
}

// NewDirectory creates a directory seeded with accounts.
func NewDirectory(accounts ...models.Account) *Directory {
	d := &Directory{
		byID:    make(map[string]models.Account),
		byEmail: make(map[string]string),
	}
	for _, a := range accounts {
		d.Register(a)
	}
	return d
}

// Register adds or replaces an account. An empty status means active.
func (d *Directory) Register(a models.Account) {
	a.Email = normalizeEmail(a.Email)
	if a.Status == "" {
		a.Status = models.AccountStatusActive
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.byID[a.ID]; ok {
		delete(d.byEmail, old.Email)
	}
	d.byID[a.ID] = a
	d.byEmail[a.Email] = a.ID
}

// ResolveByID returns the account with the given id.
func (d *Directory) ResolveByID(_ context.Context, id string) (models.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.byID[id]
	if !ok {
		return models.Account{}, interfaces.ErrAccountNotFound
	}
	return a, nil
}

// ResolveByEmail returns the account registered under email, ignoring case.
func (d *Directory) ResolveByEmail(_ context.Context, email string) (models.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[normalizeEmail(email)]
	if !ok {
		return models.Account{}, interfaces.ErrAccountNotFound
	}
	return d.byID[id], nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ interfaces.AccountResolver = (*Directory)(nil)
