package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/courier/internal/apperrors"
	"github.com/nkiryanov/courier/internal/models"
	"github.com/nkiryanov/courier/internal/repository"
	"github.com/nkiryanov/courier/internal/repository/repotest"
	"github.com/nkiryanov/courier/internal/testutil"
)

func TestStorage(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Every test works in its own transaction rolled back at the end
	repotest.Run(t, func(t *testing.T) repository.Storage {
		tx, err := pg.Pool.Begin(t.Context())
		require.NoError(t, err)

		t.Cleanup(func() {
			_ = tx.Rollback(context.Background())
		})

		return NewStorage(tx)
	})
}

// Concurrent transactions on real connections: only row level CAS protects the order
func TestStorage_Concurrency(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	s := NewStorage(pg.Pool)

	t.Run("single driver accepts", func(t *testing.T) {
		order := repotest.CreateOrder(t, s, "customer-"+uuid.NewString())

		const drivers = 10
		errs := make([]error, drivers)

		var wg sync.WaitGroup
		for i := range drivers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				driver := fmt.Sprintf("driver-%d", i)
				errs[i] = s.InTx(t.Context(), func(tx repository.Storage) error {
					_, err := tx.Order().UpdateStatus(t.Context(), repository.UpdateStatusParams{
						ID:           order.ID,
						FromStatus:   models.OrderStatusPending,
						FromVersion:  order.StatusVersion,
						ToStatus:     models.OrderStatusAccepted,
						AssignDriver: &driver,
						UpdatedAt:    time.Now(),
					})
					return err
				})
			}()
		}
		wg.Wait()

		var accepted int
		for _, err := range errs {
			if err == nil {
				accepted++
				continue
			}
			require.ErrorIs(t, err, apperrors.ErrConcurrentModification)
		}
		require.Equal(t, 1, accepted)
	})

	t.Run("single transaction per order and type", func(t *testing.T) {
		owner := "customer-" + uuid.NewString()
		order := repotest.CreateOrder(t, s, owner)
		wallet, err := s.Wallet().UpsertWallet(t.Context(), owner, "USD")
		require.NoError(t, err)

		const posters = 10
		errs := make([]error, posters)

		var wg sync.WaitGroup
		for i := range posters {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = s.Wallet().CreateTransaction(t.Context(), models.Transaction{
					ID:        uuid.New(),
					WalletID:  wallet.ID,
					OwnerRef:  owner,
					OrderID:   &order.ID,
					Type:      models.TransactionTypePayment,
					Status:    models.TransactionStatusCompleted,
					Amount:    decimal.NewFromInt(20),
					CreatedAt: time.Now(),
				})
			}()
		}
		wg.Wait()

		var created int
		for _, err := range errs {
			if err == nil {
				created++
				continue
			}
			require.ErrorIs(t, err, apperrors.ErrTransactionExists)
		}
		require.Equal(t, 1, created)

		transactions, err := s.Wallet().ListTransactions(t.Context(), repository.ListTransactionsOpts{OwnerRef: owner})
		require.NoError(t, err)
		require.Len(t, transactions, 1)
	})
}
