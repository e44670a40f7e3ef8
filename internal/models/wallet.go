package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TransactionTypeCredit   = "credit"
	TransactionTypePayment  = "payment"
	TransactionTypeEarnings = "earnings"

	TransactionStatusCompleted = "completed"
)

// Metadata keys stored with order derived transactions
const (
	MetaOrderID   = "order_id"
	MetaShortfall = "shortfall"
)

type Wallet struct {
	ID        uuid.UUID       `json:"id"`
	OwnerRef  string          `json:"owner_ref"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Transaction struct {
	ID          uuid.UUID         `json:"id"`
	WalletID    uuid.UUID         `json:"wallet_id"`
	OwnerRef    string            `json:"owner_ref"`
	OrderID     *uuid.UUID        `json:"order_id,omitempty"` // set for order derived transactions only
	Type        string            `json:"type"`
	Status      string            `json:"status"`
	Amount      decimal.Decimal   `json:"amount"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// IsDebit reports whether the transaction type decreases the balance
func IsDebit(transactionType string) bool {
	return transactionType == TransactionTypePayment
}

// ApplyAmount returns the balance after the transaction type and amount applied.
// Debits never take the balance below zero: the shortfall is returned instead.
func ApplyAmount(balance decimal.Decimal, transactionType string, amount decimal.Decimal) (next decimal.Decimal, shortfall decimal.Decimal) {
	if !IsDebit(transactionType) {
		return balance.Add(amount), decimal.Zero
	}

	next = balance.Sub(amount)
	if next.IsNegative() {
		return decimal.Zero, next.Neg()
	}
	return next, decimal.Zero
}
