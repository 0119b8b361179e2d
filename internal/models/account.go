package models

// AccountStatus is owned by the user-management service; the ledger only reads it.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusClosed    AccountStatus = "closed"
)

// Account is the ledger's view of an account holder.
type Account struct {
	ID     string        `json:"id"`
	Email  string        `json:"email"`
	Status AccountStatus `json:"status"`
}

// Active reports whether the account may take part in balance mutations.
func (a Account) Active() bool {
	return a.Status == AccountStatusActive
}
