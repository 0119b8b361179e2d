package accounts

import (
	"context"
	"testing"

	"github.com/sheikh-saqib/account-ledger-engine/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory(models.Account{ID: "acc-a", Email: "Alice@Example.com"})

	a, err := d.ResolveByEmail(ctx, "alice@example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "acc-a", a.ID)
	assert.True(t, a.Active())

	d.Register(models.Account{ID: "acc-a", Email: "alice@new.example", Status: models.AccountStatusClosed})
	_, err = d.ResolveByEmail(ctx, "alice@example.com")
	assert.ErrorIs(t, err, interfaces.ErrAccountNotFound, "old e-mail must be forgotten")

	a, err = d.ResolveByID(ctx, "acc-a")
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusClosed, a.Status)

	_, err = d.ResolveByID(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrAccountNotFound)
}
