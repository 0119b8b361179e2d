package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sheikh-saqib/account-ledger-engine/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger-engine/internal/models"
	"github.com/sheikh-saqib/account-ledger-engine/internal/models/events"
)

// AuditSink publishes every committed balance change as a BalanceChanged event,
// keyed by account id.
type AuditSink struct {
	publisher interfaces.EventPublisher
	now       func() time.Time
}

// NewAuditSink creates an audit sink on top of any event publisher.
func NewAuditSink(publisher interfaces.EventPublisher) *AuditSink {
	return &AuditSink{publisher: publisher, now: time.Now}
}

// Record implements interfaces.AuditSink.
func (s *AuditSink) Record(ctx context.Context, kind models.ChangeKind, accountID string, details models.AuditDetails) error {
	event := events.BalanceChanged{
		EventID:               uuid.NewString(),
		Kind:                  string(kind),
		AccountID:             accountID,
		TransactionID:         details.TransactionID,
		OperationID:           details.OperationID,
		CounterpartyAccountID: details.CounterpartyAccountID,
		Amount:                details.Amount,
		BalanceBefore:         details.BalanceBefore,
		BalanceAfter:          details.BalanceAfter,
		OccurredAt:            s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, accountID, event); err != nil {
		return fmt.Errorf("publish audit event for %s: %w", details.TransactionID, err)
	}
	return nil
}

var _ interfaces.AuditSink = (*AuditSink)(nil)
