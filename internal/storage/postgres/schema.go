package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect carries the driver name and DDL of one supported database.
// Queries are shared: every placeholder is $N and first appears in ascending order,
// which both PostgreSQL and SQLite bind positionally.
type Dialect struct {
	Driver string
	Schema string
}

// PostgresDialect stores amounts as NUMERIC(20,2).
var PostgresDialect = Dialect{
	Driver: "postgres",
	Schema: `
CREATE TABLE IF NOT EXISTS accounts (
    id     TEXT PRIMARY KEY,
    email  TEXT NOT NULL UNIQUE,
    status TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS transactions (
    id                      TEXT PRIMARY KEY,
    operation_id            TEXT NOT NULL,
    account_id              TEXT NOT NULL,
    type                    TEXT NOT NULL CHECK (type IN ('DEPOSIT', 'WITHDRAWAL', 'TRANSFER')),
    amount                  NUMERIC(20,2) NOT NULL CHECK (amount > 0),
    status                  TEXT NOT NULL,
    description             TEXT NOT NULL DEFAULT '',
    counterparty_account_id TEXT,
    balance_before          NUMERIC(20,2) NOT NULL,
    balance_after           NUMERIC(20,2) NOT NULL CHECK (balance_after >= 0),
    created_at              TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_account_created
    ON transactions (account_id, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_transactions_operation
    ON transactions (operation_id);

CREATE TABLE IF NOT EXISTS balance_entries (
    id             TEXT PRIMARY KEY,
    account_id     TEXT NOT NULL,
    transaction_id TEXT NOT NULL UNIQUE REFERENCES transactions (id),
    balance_before NUMERIC(20,2) NOT NULL,
    balance_after  NUMERIC(20,2) NOT NULL CHECK (balance_after >= 0),
    created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_balance_entries_account_created
    ON balance_entries (account_id, created_at DESC);
`,
}

// SQLiteDialect keeps amounts as TEXT so no value passes through a float.
var SQLiteDialect = Dialect{
	Driver: "sqlite3",
	Schema: `
CREATE TABLE IF NOT EXISTS accounts (
    id     TEXT PRIMARY KEY,
    email  TEXT NOT NULL UNIQUE,
    status TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS transactions (
    id                      TEXT PRIMARY KEY,
    operation_id            TEXT NOT NULL,
    account_id              TEXT NOT NULL,
    type                    TEXT NOT NULL CHECK (type IN ('DEPOSIT', 'WITHDRAWAL', 'TRANSFER')),
    amount                  TEXT NOT NULL,
    status                  TEXT NOT NULL,
    description             TEXT NOT NULL DEFAULT '',
    counterparty_account_id TEXT,
    balance_before          TEXT NOT NULL,
    balance_after           TEXT NOT NULL,
    created_at              TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_account_created
    ON transactions (account_id, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_transactions_operation
    ON transactions (operation_id);

CREATE TABLE IF NOT EXISTS balance_entries (
    id             TEXT PRIMARY KEY,
    account_id     TEXT NOT NULL,
    transaction_id TEXT NOT NULL UNIQUE REFERENCES transactions (id),
    balance_before TEXT NOT NULL,
    balance_after  TEXT NOT NULL,
    created_at     TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_balance_entries_account_created
    ON balance_entries (account_id, created_at DESC);
`,
}

// Migrate creates the ledger tables if they don't exist.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	if _, err := db.ExecContext(ctx, d.Schema); err != nil {
		return fmt.Errorf("apply %s schema: %w", d.Driver, err)
	}
	return nil
}
