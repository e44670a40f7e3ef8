package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/courier/internal/models"
)

type ListOrdersOpts struct {
	ActorRef   string               // customer or assigned driver, empty means any
	Statuses   []models.OrderStatus // empty means any
	Unassigned bool                 // orders without a driver only
	Limit      int                  // zero means no limit
}

type UpdateStatusParams struct {
	ID          uuid.UUID
	FromStatus  models.OrderStatus
	FromVersion int
	ToStatus    models.OrderStatus

	// Set when the transition takes an unassigned order.
	// The update is applied only if the order still has no driver.
	AssignDriver *string

	UpdatedAt time.Time
}

type OrderRepo interface {
	CreateOrder(ctx context.Context, order models.Order) (models.Order, error)

	// Must return apperrors.ErrOrderNotFound if there is no such order
	GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error)

	ListOrders(ctx context.Context, opts ListOrdersOpts) ([]models.Order, error)

	// Compare and swap status update.
	// Must return apperrors.ErrConcurrentModification if the persisted status, version or driver no longer match
	UpdateStatus(ctx context.Context, arg UpdateStatusParams) (models.Order, error)

	CreateEvent(ctx context.Context, event models.OrderEvent) (models.OrderEvent, error)
	ListEvents(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error)
}

type ListTransactionsOpts struct {
	OwnerRef string
	Types    []string // empty means any
	Limit    int      // zero means no limit
}

type WalletRepo interface {
	// Create wallet with zero balance if the owner has none yet
	UpsertWallet(ctx context.Context, ownerRef string, currency string) (models.Wallet, error)

	// Must return apperrors.ErrWalletNotFound if the owner has no wallet
	// forUpdate locks the wallet until transaction end
	GetWallet(ctx context.Context, ownerRef string, forUpdate bool) (models.Wallet, error)

	// Set new balance and bump wallet version
	UpdateBalance(ctx context.Context, walletID uuid.UUID, balance decimal.Decimal, updatedAt time.Time) (models.Wallet, error)

	// Must return apperrors.ErrTransactionExists if the order already has transaction of the type
	CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error)

	// Must return apperrors.ErrTransactionNotFound if there is no such transaction
	GetOrderTransaction(ctx context.Context, orderID uuid.UUID, transactionType string) (models.Transaction, error)

	// Newest first
	ListTransactions(ctx context.Context, opts ListTransactionsOpts) ([]models.Transaction, error)
}

type ChatRepo interface {
	// Create the order channel if not exists. Returns stored channel and whether it was created
	CreateChannel(ctx context.Context, channel models.Channel) (models.Channel, bool, error)

	// Must return apperrors.ErrChannelNotFound if the order has no channel
	GetChannel(ctx context.Context, orderID uuid.UUID) (models.Channel, error)

	// Messages with dedup key are stored once per order.
	// Returns stored message and whether it was created
	CreateMessage(ctx context.Context, message models.Message) (models.Message, bool, error)

	// Oldest first
	ListMessages(ctx context.Context, orderID uuid.UUID) ([]models.Message, error)
}

type ListEffectsOpts struct {
	OrderID       *uuid.UUID
	Statuses      []models.EffectStatus
	UpdatedBefore *time.Time
	Limit         int
}

type EffectRepo interface {
	// Insert effects missing for the order and kind.
	// Returns stored effects in the same order, existing ones as is
	CreateEffects(ctx context.Context, effects []models.Effect) ([]models.Effect, error)

	MarkDone(ctx context.Context, id uuid.UUID, updatedAt time.Time) (models.Effect, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, updatedAt time.Time) (models.Effect, error)

	// Oldest updated first
	ListEffects(ctx context.Context, opts ListEffectsOpts) ([]models.Effect, error)
}

type Storage interface {
	Order() OrderRepo
	Wallet() WalletRepo
	Chat() ChatRepo
	Effect() EffectRepo

	// Run fn in transaction. Transaction rolled back if fn returns error
	InTx(ctx context.Context, fn func(Storage) error) error
}
