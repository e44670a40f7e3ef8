package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/courier/internal/apperrors"
	"github.com/nkiryanov/courier/internal/logger"
	"github.com/nkiryanov/courier/internal/models"
	"github.com/nkiryanov/courier/internal/repository"
)

const (
	DefaultCurrency = "USD"
)

// Amount posted when the requested one is zero or negative
var DefaultMinAmount = decimal.RequireFromString("1.00")

type changePublisher interface {
	Publish(ctx context.Context, change models.Change) error
}

type Config struct {
	Currency  string
	MinAmount decimal.Decimal
}

type Service struct {
	storage   repository.Storage
	currency  string
	minAmount decimal.Decimal

	publisher changePublisher
	logger    logger.Logger
}

func NewService(storage repository.Storage, cfg Config, publisher changePublisher, l logger.Logger) *Service {
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	if !cfg.MinAmount.IsPositive() {
		cfg.MinAmount = DefaultMinAmount
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		storage:   storage,
		currency:  cfg.Currency,
		minAmount: cfg.MinAmount,
		publisher: publisher,
		logger:    l,
	}
}

// Order derived posting. At most one posting exists per order and purpose
type PostRequest struct {
	OwnerRef    string
	OrderID     uuid.UUID
	Purpose     string // models.TransactionTypePayment or models.TransactionTypeEarnings
	Amount      decimal.Decimal
	Description string
}

type PostResult struct {
	// False if the transaction was posted before, Transaction is the existing one then
	Posted      bool
	Transaction models.Transaction
	Wallet      models.Wallet
}

// WalletChange is the wallet state sent to the wallet owner
type WalletChange struct {
	Wallet      models.Wallet      `json:"wallet"`
	Transaction models.Transaction `json:"transaction"`
}

var errAlreadyPosted = errors.New("already posted")

// PostIfAbsent posts the order transaction unless the order already has one with the same purpose.
// Repeated and concurrent calls with the same order and purpose change the balance once.
// Storage failures are wrapped with apperrors.ErrLedgerPostingFailed and safe to retry.
func (s *Service) PostIfAbsent(ctx context.Context, req PostRequest) (PostResult, error) {
	if req.OwnerRef == "" {
		return PostResult{}, fmt.Errorf("%w: owner is required", apperrors.ErrBadRequest)
	}
	if req.Purpose != models.TransactionTypePayment && req.Purpose != models.TransactionTypeEarnings {
		return PostResult{}, fmt.Errorf("%w: unknown posting purpose %q", apperrors.ErrBadRequest, req.Purpose)
	}

	amount := req.Amount
	if !amount.IsPositive() {
		s.logger.Warn("Posting amount is not positive, min amount used", "order_id", req.OrderID, "amount", amount, "min_amount", s.minAmount)
		amount = s.minAmount
	}

	orderID := req.OrderID
	transaction := models.Transaction{
		ID:          uuid.New(),
		OwnerRef:    req.OwnerRef,
		OrderID:     &orderID,
		Type:        req.Purpose,
		Status:      models.TransactionStatusCompleted,
		Amount:      amount,
		Description: req.Description,
		Metadata:    map[string]string{models.MetaOrderID: orderID.String()},
	}

	var result PostResult
	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		existing, err := tx.Wallet().GetOrderTransaction(ctx, req.OrderID, req.Purpose)
		switch {
		case err == nil:
			result.Transaction = existing
			return nil
		case !errors.Is(err, apperrors.ErrTransactionNotFound):
			return err
		}

		result, err = s.post(ctx, tx, transaction)
		return err
	})

	// Lost the race to concurrent posting: the insert was rolled back, read the winner
	if errors.Is(err, errAlreadyPosted) {
		existing, err := s.storage.Wallet().GetOrderTransaction(ctx, req.OrderID, req.Purpose)
		if err != nil {
			return PostResult{}, fmt.Errorf("%w: %w", apperrors.ErrLedgerPostingFailed, err)
		}
		return PostResult{Transaction: existing}, nil
	}
	if err != nil {
		return PostResult{}, fmt.Errorf("%w: %w", apperrors.ErrLedgerPostingFailed, err)
	}

	if result.Posted {
		s.logger.Info("Order transaction posted",
			"order_id", req.OrderID, "owner", req.OwnerRef, "type", req.Purpose, "amount", amount)
		s.publish(ctx, result)
	} else {
		s.logger.Debug("Order transaction exists, skip posting", "order_id", req.OrderID, "type", req.Purpose)
	}

	return result, nil
}

// Credit tops up the owner wallet. Credits have no order and are not deduplicated
func (s *Service) Credit(ctx context.Context, ownerRef string, amount decimal.Decimal, description string) (PostResult, error) {
	if ownerRef == "" {
		return PostResult{}, fmt.Errorf("%w: owner is required", apperrors.ErrBadRequest)
	}
	if !amount.IsPositive() {
		return PostResult{}, apperrors.ErrInvalidAmount
	}

	var result PostResult
	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		var err error
		result, err = s.post(ctx, tx, models.Transaction{
			ID:          uuid.New(),
			OwnerRef:    ownerRef,
			Type:        models.TransactionTypeCredit,
			Status:      models.TransactionStatusCompleted,
			Amount:      amount,
			Description: description,
		})
		return err
	})
	if err != nil {
		return PostResult{}, fmt.Errorf("%w: %w", apperrors.ErrLedgerPostingFailed, err)
	}

	s.logger.Info("Wallet credited", "owner", ownerRef, "amount", amount)
	s.publish(ctx, result)

	return result, nil
}

// post must be called in transaction.
// The wallet row is locked before the insert, so postings of one owner are serialized
func (s *Service) post(ctx context.Context, tx repository.Storage, t models.Transaction) (PostResult, error) {
	now := time.Now()

	if _, err := tx.Wallet().UpsertWallet(ctx, t.OwnerRef, s.currency); err != nil {
		return PostResult{}, err
	}
	wallet, err := tx.Wallet().GetWallet(ctx, t.OwnerRef, true)
	if err != nil {
		return PostResult{}, err
	}

	balance, shortfall := models.ApplyAmount(wallet.Balance, t.Type, t.Amount)
	if shortfall.IsPositive() {
		s.logger.Warn("Debit exceeds wallet balance, balance clamped to zero",
			"owner", t.OwnerRef, "amount", t.Amount, "balance", wallet.Balance, "shortfall", shortfall)
		if t.Metadata == nil {
			t.Metadata = map[string]string{}
		}
		t.Metadata[models.MetaShortfall] = shortfall.StringFixed(2)
	}

	t.WalletID = wallet.ID
	t.CreatedAt = now
	created, err := tx.Wallet().CreateTransaction(ctx, t)
	switch {
	case errors.Is(err, apperrors.ErrTransactionExists):
		return PostResult{}, errAlreadyPosted
	case err != nil:
		return PostResult{}, err
	}

	wallet, err = tx.Wallet().UpdateBalance(ctx, wallet.ID, balance, now)
	if err != nil {
		return PostResult{}, err
	}

	return PostResult{Posted: true, Transaction: created, Wallet: wallet}, nil
}

func (s *Service) publish(ctx context.Context, result PostResult) {
	if s.publisher == nil {
		return
	}

	change, err := models.NewChange(
		models.EntityWallet,
		result.Wallet.ID.String(),
		result.Wallet.Version,
		[]string{result.Wallet.OwnerRef},
		WalletChange{Wallet: result.Wallet, Transaction: result.Transaction},
		result.Wallet.UpdatedAt,
	)
	if err == nil {
		err = s.publisher.Publish(ctx, change)
	}
	if err != nil {
		s.logger.Warn("Failed to publish wallet change", "owner", result.Wallet.OwnerRef, "error", err)
	}
}

// GetWallet returns the owner wallet, or zero balance wallet if the owner has none yet
func (s *Service) GetWallet(ctx context.Context, ownerRef string) (models.Wallet, error) {
	wallet, err := s.storage.Wallet().GetWallet(ctx, ownerRef, false)
	switch {
	case err == nil:
		return wallet, nil
	case errors.Is(err, apperrors.ErrWalletNotFound):
		return models.Wallet{OwnerRef: ownerRef, Balance: decimal.Zero, Currency: s.currency}, nil
	default:
		return wallet, fmt.Errorf("can't get wallet. Err: %w", err)
	}
}

// ListTransactions returns owner transactions newest first
func (s *Service) ListTransactions(ctx context.Context, ownerRef string, types []string, limit int) ([]models.Transaction, error) {
	transactions, err := s.storage.Wallet().ListTransactions(ctx, repository.ListTransactionsOpts{
		OwnerRef: ownerRef,
		Types:    types,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("can't list transactions. Err: %w", err)
	}

	return transactions, nil
}
