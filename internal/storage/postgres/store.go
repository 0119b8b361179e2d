package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sheikh-saqib/account-ledger-engine/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger-engine/internal/models"
	"github.com/shopspring/decimal"
)

const (
	latestBalanceQuery = `SELECT balance_after FROM balance_entries
	WHERE account_id = $1 ORDER BY created_at DESC LIMIT 1`

	latestEntryQuery = `SELECT id, account_id, transaction_id, balance_before, balance_after, created_at
	FROM balance_entries WHERE account_id = $1 ORDER BY created_at DESC LIMIT 1`

	insertTransactionQuery = `INSERT INTO transactions (id, operation_id, account_id, type, amount, status,
	description, counterparty_account_id, balance_before, balance_after, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	insertEntryQuery = `INSERT INTO balance_entries (id, account_id, transaction_id, balance_before, balance_after, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

	entriesQuery = `SELECT id, account_id, transaction_id, balance_before, balance_after, created_at
	FROM balance_entries WHERE account_id = $1 ORDER BY created_at ASC`

	transactionColumns = `id, operation_id, account_id, type, amount, status, description,
	counterparty_account_id, balance_before, balance_after, created_at`
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store is a SQL implementation of interfaces.LedgerStore.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database whose schema has been applied.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RunInTx runs fn inside one database transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, scope interfaces.Scope) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", interfaces.ErrStorage, err)
	}

	defer func() {
		if p := recover(); p != nil {
			dbTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &scope{q: dbTx}); err != nil {
		dbTx.Rollback()
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", interfaces.ErrStorage, err)
	}
	return nil
}

// LatestBalance reads the last committed balance of the account.
func (s *Store) LatestBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return latestBalance(ctx, s.db, accountID)
}

// ListTransactions pages the account's transactions newest first.
func (s *Store) ListTransactions(ctx context.Context, q models.TransactionQuery) ([]models.LedgerTransaction, int, error) {
	where := `WHERE account_id = $1`
	args := []any{q.AccountID}
	if q.Type != nil {
		where += ` AND type = $2`
		args = append(args, string(*q.Type))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count transactions: %v", interfaces.ErrStorage, err)
	}

	query := fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, len(args)+1, len(args)+2)
	args = append(args, q.Limit, q.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list transactions: %v", interfaces.ErrStorage, err)
	}
	defer rows.Close()

	txs := make([]models.LedgerTransaction, 0, q.Limit)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: scan transaction: %v", interfaces.ErrStorage, err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: list transactions: %v", interfaces.ErrStorage, err)
	}
	return txs, total, nil
}

// Entries returns the account's balance chain, oldest first.
func (s *Store) Entries(ctx context.Context, accountID string) ([]models.BalanceEntry, error) {
	rows, err := s.db.QueryContext(ctx, entriesQuery, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: list entries: %v", interfaces.ErrStorage, err)
	}
	defer rows.Close()

	var entries []models.BalanceEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan entry: %v", interfaces.ErrStorage, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list entries: %v", interfaces.ErrStorage, err)
	}
	return entries, nil
}

func latestBalance(ctx context.Context, q queryer, accountID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := q.QueryRowContext(ctx, latestBalanceQuery, accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: latest balance: %v", interfaces.ErrStorage, err)
	}
	return balance, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (models.BalanceEntry, error) {
	var e models.BalanceEntry
	err := row.Scan(&e.ID, &e.AccountID, &e.TransactionID, &e.BalanceBefore, &e.BalanceAfter, &e.CreatedAt)
	return e, err
}

func scanTransaction(row rowScanner) (models.LedgerTransaction, error) {
	var (
		tx           models.LedgerTransaction
		txType       string
		status       string
		counterparty sql.NullString
	)
	err := row.Scan(
		&tx.ID,
		&tx.OperationID,
		&tx.AccountID,
		&txType,
		&tx.Amount,
		&status,
		&tx.Description,
		&counterparty,
		&tx.BalanceBefore,
		&tx.BalanceAfter,
		&tx.CreatedAt,
	)
	if err != nil {
		return models.LedgerTransaction{}, err
	}
	tx.Type = models.TransactionType(txType)
	tx.Status = models.TransactionStatus(status)
	tx.CounterpartyAccountID = counterparty.String
	return tx, nil
}

// scope binds the Scope operations to one *sql.Tx.
type scope struct {
	q queryer
}

func (sc *scope) LatestBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return latestBalance(ctx, sc.q, accountID)
}

func (sc *scope) LatestEntry(ctx context.Context, accountID string) (models.BalanceEntry, bool, error) {
	e, err := scanEntry(sc.q.QueryRowContext(ctx, latestEntryQuery, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.BalanceEntry{}, false, nil
	}
	if err != nil {
		return models.BalanceEntry{}, false, fmt.Errorf("%w: latest entry: %v", interfaces.ErrStorage, err)
	}
	return e, true, nil
}

func (sc *scope) AppendAll(ctx context.Context, records ...models.LedgerRecord) error {
	if err := models.ValidateBatch(records); err != nil {
		return err
	}

	for _, r := range records {
		tx, e := r.Transaction, r.Entry
		var counterparty sql.NullString
		if tx.CounterpartyAccountID != "" {
			counterparty = sql.NullString{String: tx.CounterpartyAccountID, Valid: true}
		}

		_, err := sc.q.ExecContext(ctx, insertTransactionQuery,
			tx.ID, tx.OperationID, tx.AccountID, string(tx.Type), tx.Amount, string(tx.Status),
			tx.Description, counterparty, tx.BalanceBefore, tx.BalanceAfter, tx.CreatedAt)
		if err != nil {
			return fmt.Errorf("%w: insert transaction %s: %v", interfaces.ErrStorage, tx.ID, err)
		}

		_, err = sc.q.ExecContext(ctx, insertEntryQuery,
			e.ID, e.AccountID, e.TransactionID, e.BalanceBefore, e.BalanceAfter, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("%w: insert entry %s: %v", interfaces.ErrStorage, e.ID, err)
		}
	}
	return nil
}

var _ interfaces.LedgerStore = (*Store)(nil)
