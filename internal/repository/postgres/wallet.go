package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/courier/internal/apperrors"
	"github.com/nkiryanov/courier/internal/models"
	"github.com/nkiryanov/courier/internal/repository"
)

type WalletRepo struct {
	DB DBTX
}

const walletColumns = `id, owner_ref, balance, currency, version, updated_at`

// The no-op update makes RETURNING work for the existing wallet too
const upsertWallet = `-- name: UpsertWallet
INSERT INTO wallets (id, owner_ref, balance, currency, version, updated_at)
VALUES ($1, $2, 0, $3, 0, $4)
ON CONFLICT (owner_ref) DO UPDATE SET owner_ref = EXCLUDED.owner_ref
RETURNING ` + walletColumns

func (r *WalletRepo) UpsertWallet(ctx context.Context, ownerRef string, currency string) (models.Wallet, error) {
	rows, _ := r.DB.Query(ctx, upsertWallet, uuid.New(), ownerRef, currency, time.Now())
	wallet, err := pgx.CollectOneRow(rows, rowToWallet)
	if err != nil {
		return wallet, fmt.Errorf("db error: %w", err)
	}

	return wallet, nil
}

const getWallet = `-- name: GetWallet
SELECT ` + walletColumns + ` FROM wallets
WHERE owner_ref = $1
`

func (r *WalletRepo) GetWallet(ctx context.Context, ownerRef string, forUpdate bool) (models.Wallet, error) {
	query := getWallet
	if forUpdate {
		query += "FOR UPDATE"
	}

	rows, _ := r.DB.Query(ctx, query, ownerRef)
	wallet, err := pgx.CollectOneRow(rows, rowToWallet)

	switch {
	case err == nil:
		return wallet, nil
	case errors.Is(err, pgx.ErrNoRows):
		return wallet, apperrors.ErrWalletNotFound
	default:
		return wallet, fmt.Errorf("db error: %w", err)
	}
}

const updateWalletBalance = `-- name: UpdateWalletBalance
UPDATE wallets
SET balance = $2, version = version + 1, updated_at = $3
WHERE id = $1
RETURNING ` + walletColumns

func (r *WalletRepo) UpdateBalance(ctx context.Context, walletID uuid.UUID, balance decimal.Decimal, updatedAt time.Time) (models.Wallet, error) {
	rows, _ := r.DB.Query(ctx, updateWalletBalance, walletID, balance, updatedAt)
	wallet, err := pgx.CollectOneRow(rows, rowToWallet)

	switch {
	case err == nil:
		return wallet, nil
	case errors.Is(err, pgx.ErrNoRows):
		return wallet, apperrors.ErrWalletNotFound
	default:
		return wallet, fmt.Errorf("db error: %w", err)
	}
}

const transactionColumns = `id, wallet_id, owner_ref, order_id, type, status, amount, description, metadata, created_at`

// Concurrent insert of the same (order_id, type) waits for the first one and then does nothing
const createTransaction = `-- name: CreateTransaction
INSERT INTO wallet_transactions (id, wallet_id, owner_ref, order_id, type, status, amount, description, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT DO NOTHING
RETURNING ` + transactionColumns

func (r *WalletRepo) CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	metadata := t.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	rows, _ := r.DB.Query(ctx, createTransaction,
		t.ID, t.WalletID, t.OwnerRef, t.OrderID, t.Type, t.Status, t.Amount, t.Description, metadata, t.CreatedAt,
	)
	transaction, err := pgx.CollectOneRow(rows, rowToTransaction)

	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return transaction, nil
	case errors.Is(err, pgx.ErrNoRows):
		return transaction, apperrors.ErrTransactionExists
	case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation:
		return transaction, apperrors.ErrTransactionExists
	case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation:
		return transaction, apperrors.ErrWalletNotFound
	default:
		return transaction, fmt.Errorf("db error: %w", err)
	}
}

const getOrderTransaction = `-- name: GetOrderTransaction
SELECT ` + transactionColumns + ` FROM wallet_transactions
WHERE order_id = $1 AND type = $2
`

func (r *WalletRepo) GetOrderTransaction(ctx context.Context, orderID uuid.UUID, transactionType string) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, getOrderTransaction, orderID, transactionType)
	transaction, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return transaction, nil
	case errors.Is(err, pgx.ErrNoRows):
		return transaction, apperrors.ErrTransactionNotFound
	default:
		return transaction, fmt.Errorf("db error: %w", err)
	}
}

const listTransactions = `-- name: ListTransactions
SELECT ` + transactionColumns + ` FROM wallet_transactions
WHERE owner_ref = $1
	AND (cardinality($2::varchar[]) = 0 OR type = ANY($2::varchar[]))
ORDER BY created_at DESC, id
LIMIT NULLIF($3::integer, 0)
`

func (r *WalletRepo) ListTransactions(ctx context.Context, opts repository.ListTransactionsOpts) ([]models.Transaction, error) {
	types := opts.Types
	if types == nil {
		types = []string{}
	}

	rows, _ := r.DB.Query(ctx, listTransactions, opts.OwnerRef, types, opts.Limit)
	transactions, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return transactions, nil
}

func rowToWallet(row pgx.CollectableRow) (models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.OwnerRef, &w.Balance, &w.Currency, &w.Version, &w.UpdatedAt)
	return w, err
}

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID, &t.WalletID, &t.OwnerRef, &t.OrderID, &t.Type, &t.Status,
		&t.Amount, &t.Description, &t.Metadata, &t.CreatedAt,
	)
	return t, err
}
