package ledger

import (
	"fmt"

	"github.com/sheikh-saqib/account-ledger-engine/internal/models"
	"github.com/shopspring/decimal"
)

// validateAmount checks an operation amount and returns it fixed to 2 decimal places.
func (l *Ledger) validateAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	switch {
	case !amount.IsPositive():
		return decimal.Zero, fmt.Errorf("%w: %s is not positive", ErrInvalidAmount, amount)
	case !models.HasValidScale(amount):
		return decimal.Zero, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, amount, models.AmountScale)
	case amount.GreaterThan(l.cfg.MaxAmount):
		return decimal.Zero, fmt.Errorf("%w: %s exceeds the maximum of %s", ErrInvalidAmount, amount, l.cfg.MaxAmount)
	}
	return models.Normalize(amount), nil
}

// checkLeg enforces the per-leg invariants before a record is handed to the store.
func checkLeg(tx models.LedgerTransaction) error {
	if !tx.Amount.IsPositive() {
		return fmt.Errorf("%w: transaction %s has non-positive amount", ErrChainBroken, tx.ID)
	}
	if !tx.BalanceAfter.Equal(tx.BalanceBefore.Add(tx.SignedAmount())) {
		return fmt.Errorf("%w: transaction %s: %s + %s != %s", ErrChainBroken, tx.ID, tx.BalanceBefore, tx.SignedAmount(), tx.BalanceAfter)
	}
	if tx.BalanceAfter.IsNegative() {
		return fmt.Errorf("%w: transaction %s overdraws account %s", ErrChainBroken, tx.ID, tx.AccountID)
	}
	return nil
}
