package interfaces

import (
	"context"
	"errors"

	"github.com/sheikh-saqib/account-ledger-engine/internal/models"
)

// ErrAccountNotFound is returned by resolvers when no account matches.
var ErrAccountNotFound = errors.New("account not found")

// AccountResolver resolves account identities owned by the user-management service.
type AccountResolver interface {
	ResolveByID(ctx context.Context, id string) (models.Account, error)
	ResolveByEmail(ctx context.Context, email string) (models.Account, error)
}
