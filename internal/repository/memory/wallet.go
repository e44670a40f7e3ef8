package memory

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/courier/internal/apperrors"
	"github.com/nkiryanov/courier/internal/models"
	"github.com/nkiryanov/courier/internal/repository"
)

type WalletRepo struct {
	s *Storage
}

func (r *WalletRepo) UpsertWallet(_ context.Context, ownerRef string, currency string) (models.Wallet, error) {
	var wallet models.Wallet
	err := r.s.do(func(d *dataset) error {
		w, ok := d.wallets[ownerRef]
		if !ok {
			w = models.Wallet{
				ID:        uuid.New(),
				OwnerRef:  ownerRef,
				Balance:   decimal.Zero,
				Currency:  currency,
				UpdatedAt: time.Now(),
			}
			d.wallets[ownerRef] = w
		}
		wallet = w
		return nil
	})
	return wallet, err
}

// The whole storage is locked during transaction, so forUpdate needs nothing extra
func (r *WalletRepo) GetWallet(_ context.Context, ownerRef string, _ bool) (models.Wallet, error) {
	var wallet models.Wallet
	err := r.s.do(func(d *dataset) error {
		w, ok := d.wallets[ownerRef]
		if !ok {
			return apperrors.ErrWalletNotFound
		}
		wallet = w
		return nil
	})
	return wallet, err
}

func (r *WalletRepo) UpdateBalance(_ context.Context, walletID uuid.UUID, balance decimal.Decimal, updatedAt time.Time) (models.Wallet, error) {
	var wallet models.Wallet
	err := r.s.do(func(d *dataset) error {
		for owner, w := range d.wallets {
			if w.ID != walletID {
				continue
			}
			w.Balance = balance
			w.Version++
			w.UpdatedAt = updatedAt
			d.wallets[owner] = w
			wallet = w
			return nil
		}
		return apperrors.ErrWalletNotFound
	})
	return wallet, err
}

func (r *WalletRepo) CreateTransaction(_ context.Context, t models.Transaction) (models.Transaction, error) {
	err := r.s.do(func(d *dataset) error {
		if !walletExists(d, t.WalletID) {
			return apperrors.ErrWalletNotFound
		}
		if t.OrderID != nil {
			for _, stored := range d.transactions {
				if stored.OrderID != nil && *stored.OrderID == *t.OrderID && stored.Type == t.Type {
					return apperrors.ErrTransactionExists
				}
			}
		}

		t.Metadata = maps.Clone(t.Metadata)
		d.transactions = append(d.transactions, t)
		return nil
	})
	return t, err
}

func (r *WalletRepo) GetOrderTransaction(_ context.Context, orderID uuid.UUID, transactionType string) (models.Transaction, error) {
	var transaction models.Transaction
	err := r.s.do(func(d *dataset) error {
		for _, t := range d.transactions {
			if t.OrderID != nil && *t.OrderID == orderID && t.Type == transactionType {
				transaction = t
				return nil
			}
		}
		return apperrors.ErrTransactionNotFound
	})
	return transaction, err
}

func (r *WalletRepo) ListTransactions(_ context.Context, opts repository.ListTransactionsOpts) ([]models.Transaction, error) {
	transactions := []models.Transaction{}
	err := r.s.do(func(d *dataset) error {
		// Newest first: transactions are appended in creation order
		for _, t := range slices.Backward(d.transactions) {
			if t.OwnerRef != opts.OwnerRef {
				continue
			}
			if len(opts.Types) > 0 && !slices.Contains(opts.Types, t.Type) {
				continue
			}
			transactions = append(transactions, t)
			if opts.Limit > 0 && len(transactions) == opts.Limit {
				break
			}
		}
		return nil
	})
	return transactions, err
}

func walletExists(d *dataset, walletID uuid.UUID) bool {
	for _, w := range d.wallets {
		if w.ID == walletID {
			return true
		}
	}
	return false
}
