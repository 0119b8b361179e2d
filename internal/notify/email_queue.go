// Package notify delivers balance-change notifications to account holders.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sheikh-saqib/account-ledger-engine/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger-engine/internal/models"
	"github.com/sheikh-saqib/account-ledger-engine/internal/models/events"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// publisher is the part of *amqp.Channel the queue needs.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// EmailQueue hands notification e-mails to a RabbitMQ queue consumed by the mail service.
// Publishing goes through a circuit breaker so an unavailable broker costs nothing
// once the breaker is open.
type EmailQueue struct {
	mu       sync.Mutex // serializes publishes on the shared channel
	ch       publisher
	queue    string
	currency string
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
	now      func() time.Time
}

// NewEmailQueue creates a notification sink publishing to queue on ch.
func NewEmailQueue(ch publisher, queue, currency string, logger *zap.Logger) *EmailQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if currency == "" {
		currency = money.USD
	}
	q := &EmailQueue{
		ch:       ch,
		queue:    queue,
		currency: currency,
		logger:   logger,
		now:      time.Now,
	}
	q.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "email-queue",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return q
}

// Notify implements interfaces.NotificationSink.
func (q *EmailQueue) Notify(ctx context.Context, account models.Account, kind models.ChangeKind, amount, balance decimal.Decimal) error {
	if account.Email == "" {
		return fmt.Errorf("account %s has no e-mail address", account.ID)
	}

	msg := events.EmailNotification{
		ID:        uuid.NewString(),
		To:        account.Email,
		Subject:   subject(kind),
		Body:      Body(kind, amount, balance, q.currency),
		Kind:      string(kind),
		AccountID: account.ID,
		Amount:    amount,
		Balance:   balance,
		Currency:  q.currency,
		CreatedAt: q.now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	_, err = q.breaker.Execute(func() (interface{}, error) {
		q.mu.Lock()
		defer q.mu.Unlock()
		return nil, q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Timestamp:    msg.CreatedAt,
			Body:         data,
		})
	})
	if err != nil {
		return fmt.Errorf("queue notification for %s: %w", account.ID, err)
	}
	return nil
}

func subject(kind models.ChangeKind) string {
	switch kind {
	case models.ChangeDeposit:
		return "Deposit received"
	case models.ChangeWithdrawal:
		return "Withdrawal processed"
	case models.ChangeTransferOut:
		return "Transfer sent"
	case models.ChangeTransferIn:
		return "Transfer received"
	}
	return "Balance updated"
}

// Body renders the notification text with amounts formatted in currency.
func Body(kind models.ChangeKind, amount, balance decimal.Decimal, currency string) string {
	return fmt.Sprintf("%s of %s. Your new balance is %s.", subject(kind), Format(amount, currency), Format(balance, currency))
}

// Format renders an amount the way the currency is usually written, e.g. $1,234.50.
// The amount is rounded to the currency's minor unit (none for JPY, three for BHD).
func Format(d decimal.Decimal, currency string) string {
	fraction := int32(models.AmountScale)
	if c := money.GetCurrency(currency); c != nil {
		fraction = int32(c.Fraction)
	}
	return money.New(d.Shift(fraction).Round(0).IntPart(), currency).Display()
}

var _ interfaces.NotificationSink = (*EmailQueue)(nil)
