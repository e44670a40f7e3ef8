// Package repotest holds behaviour checks shared by every repository.Storage implementation
package repotest

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/courier/internal/apperrors"
	"github.com/nkiryanov/courier/internal/models"
	"github.com/nkiryanov/courier/internal/repository"
)

// NewStorageFunc returns empty storage for a test
type NewStorageFunc func(t *testing.T) repository.Storage

// CreateOrder stores pending order of the customer
func CreateOrder(t *testing.T, s repository.Storage, customer string) models.Order {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	order, err := s.Order().CreateOrder(t.Context(), models.Order{
		ID:          uuid.New(),
		Status:      models.OrderStatusPending,
		CustomerRef: customer,
		Price:       decimal.RequireFromString("20.00"),
		Currency:    "USD",
		Pickup:      "A",
		Dropoff:     "B",
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	require.NoError(t, err)

	return order
}

func Run(t *testing.T, newStorage NewStorageFunc) {
	t.Run("orders", func(t *testing.T) { testOrders(t, newStorage) })
	t.Run("wallets", func(t *testing.T) { testWallets(t, newStorage) })
	t.Run("chat", func(t *testing.T) { testChat(t, newStorage) })
	t.Run("effects", func(t *testing.T) { testEffects(t, newStorage) })
	t.Run("transactions", func(t *testing.T) { testInTx(t, newStorage) })
}

func testOrders(t *testing.T, newStorage NewStorageFunc) {
	t.Run("create and get", func(t *testing.T) {
		s := newStorage(t)
		order := CreateOrder(t, s, "customer-1")

		got, err := s.Order().GetOrder(t.Context(), order.ID)

		require.NoError(t, err)
		require.Equal(t, order.ID, got.ID)
		require.Equal(t, models.OrderStatusPending, got.Status)
		require.Nil(t, got.DriverRef)
		require.True(t, order.Price.Equal(got.Price), "price has to be stored as is")
	})

	t.Run("get not existed", func(t *testing.T) {
		s := newStorage(t)

		_, err := s.Order().GetOrder(t.Context(), uuid.New())

		require.ErrorIs(t, err, apperrors.ErrOrderNotFound)
	})

	t.Run("update status assigns driver once", func(t *testing.T) {
		s := newStorage(t)
		order := CreateOrder(t, s, "customer-1")
		driver := "driver-1"

		updated, err := s.Order().UpdateStatus(t.Context(), repository.UpdateStatusParams{
			ID:           order.ID,
			FromStatus:   models.OrderStatusPending,
			FromVersion:  order.StatusVersion,
			ToStatus:     models.OrderStatusAccepted,
			AssignDriver: &driver,
			UpdatedAt:    time.Now(),
		})
		require.NoError(t, err)
		require.Equal(t, models.OrderStatusAccepted, updated.Status)
		require.Equal(t, order.StatusVersion+1, updated.StatusVersion)
		require.NotNil(t, updated.DriverRef)
		require.Equal(t, driver, *updated.DriverRef)

		// Stale version
		another := "driver-2"
		_, err = s.Order().UpdateStatus(t.Context(), repository.UpdateStatusParams{
			ID:           order.ID,
			FromStatus:   models.OrderStatusPending,
			FromVersion:  order.StatusVersion,
			ToStatus:     models.OrderStatusAccepted,
			AssignDriver: &another,
			UpdatedAt:    time.Now(),
		})
		require.ErrorIs(t, err, apperrors.ErrConcurrentModification)

		// Fresh version but driver already set
		_, err = s.Order().UpdateStatus(t.Context(), repository.UpdateStatusParams{
			ID:           order.ID,
			FromStatus:   models.OrderStatusAccepted,
			FromVersion:  updated.StatusVersion,
			ToStatus:     models.OrderStatusCompleted,
			AssignDriver: &another,
			UpdatedAt:    time.Now(),
		})
		require.ErrorIs(t, err, apperrors.ErrConcurrentModification)

		stored, err := s.Order().GetOrder(t.Context(), order.ID)
		require.NoError(t, err)
		require.Equal(t, driver, *stored.DriverRef, "driver must never be reassigned")
		require.Equal(t, models.OrderStatusAccepted, stored.Status)
	})

	t.Run("list orders", func(t *testing.T) {
		s := newStorage(t)
		first := CreateOrder(t, s, "customer-1")
		second := CreateOrder(t, s, "customer-2")
		driver := "driver-1"
		_, err := s.Order().UpdateStatus(t.Context(), repository.UpdateStatusParams{
			ID:           second.ID,
			FromStatus:   models.OrderStatusPending,
			ToStatus:     models.OrderStatusAccepted,
			AssignDriver: &driver,
			UpdatedAt:    time.Now(),
		})
		require.NoError(t, err)

		byCustomer, err := s.Order().ListOrders(t.Context(), repository.ListOrdersOpts{ActorRef: "customer-1"})
		require.NoError(t, err)
		require.Len(t, byCustomer, 1)
		require.Equal(t, first.ID, byCustomer[0].ID)

		byDriver, err := s.Order().ListOrders(t.Context(), repository.ListOrdersOpts{ActorRef: driver})
		require.NoError(t, err)
		require.Len(t, byDriver, 1)
		require.Equal(t, second.ID, byDriver[0].ID)

		available, err := s.Order().ListOrders(t.Context(), repository.ListOrdersOpts{
			Statuses:   []models.OrderStatus{models.OrderStatusPending},
			Unassigned: true,
		})
		require.NoError(t, err)
		require.Len(t, available, 1)
		require.Equal(t, first.ID, available[0].ID)

		limited, err := s.Order().ListOrders(t.Context(), repository.ListOrdersOpts{Limit: 1})
		require.NoError(t, err)
		require.Len(t, limited, 1)
	})

	t.Run("events", func(t *testing.T) {
		s := newStorage(t)
		order := CreateOrder(t, s, "customer-1")

		for _, to := range []models.OrderStatus{models.OrderStatusPending, models.OrderStatusAccepted} {
			_, err := s.Order().CreateEvent(t.Context(), models.OrderEvent{
				OrderID:    order.ID,
				FromStatus: models.OrderStatusNone,
				ToStatus:   to,
				ActorRef:   "customer-1",
				CreatedAt:  time.Now(),
			})
			require.NoError(t, err)
		}

		events, err := s.Order().ListEvents(t.Context(), order.ID)
		require.NoError(t, err)
		require.Len(t, events, 2)
		require.Equal(t, models.OrderStatusPending, events[0].ToStatus, "events have to be in creation order")
		require.Equal(t, models.OrderStatusAccepted, events[1].ToStatus)
		require.Less(t, events[0].ID, events[1].ID)
	})
}

func testWallets(t *testing.T, newStorage NewStorageFunc) {
	t.Run("upsert is idempotent", func(t *testing.T) {
		s := newStorage(t)

		first, err := s.Wallet().UpsertWallet(t.Context(), "customer-1", "USD")
		require.NoError(t, err)
		second, err := s.Wallet().UpsertWallet(t.Context(), "customer-1", "USD")
		require.NoError(t, err)

		require.Equal(t, first.ID, second.ID)
		require.True(t, second.Balance.IsZero())
	})

	t.Run("get not existed", func(t *testing.T) {
		s := newStorage(t)

		_, err := s.Wallet().GetWallet(t.Context(), "nobody", false)

		require.ErrorIs(t, err, apperrors.ErrWalletNotFound)
	})

	t.Run("update balance bumps version", func(t *testing.T) {
		s := newStorage(t)
		wallet, err := s.Wallet().UpsertWallet(t.Context(), "customer-1", "USD")
		require.NoError(t, err)

		updated, err := s.Wallet().UpdateBalance(t.Context(), wallet.ID, decimal.NewFromInt(15), time.Now())
		require.NoError(t, err)

		require.True(t, updated.Balance.Equal(decimal.NewFromInt(15)))
		require.Equal(t, wallet.Version+1, updated.Version)

		stored, err := s.Wallet().GetWallet(t.Context(), "customer-1", true)
		require.NoError(t, err)
		require.True(t, stored.Balance.Equal(decimal.NewFromInt(15)))
	})

	t.Run("one transaction per order and type", func(t *testing.T) {
		s := newStorage(t)
		order := CreateOrder(t, s, "customer-1")
		wallet, err := s.Wallet().UpsertWallet(t.Context(), "customer-1", "USD")
		require.NoError(t, err)

		newTransaction := func(transactionType string) models.Transaction {
			return models.Transaction{
				ID:        uuid.New(),
				WalletID:  wallet.ID,
				OwnerRef:  wallet.OwnerRef,
				OrderID:   &order.ID,
				Type:      transactionType,
				Status:    models.TransactionStatusCompleted,
				Amount:    decimal.NewFromInt(20),
				Metadata:  map[string]string{models.MetaOrderID: order.ID.String()},
				CreatedAt: time.Now(),
			}
		}

		created, err := s.Wallet().CreateTransaction(t.Context(), newTransaction(models.TransactionTypePayment))
		require.NoError(t, err)
		require.Equal(t, order.ID.String(), created.Metadata[models.MetaOrderID])

		_, err = s.Wallet().CreateTransaction(t.Context(), newTransaction(models.TransactionTypePayment))
		require.ErrorIs(t, err, apperrors.ErrTransactionExists)

		_, err = s.Wallet().CreateTransaction(t.Context(), newTransaction(models.TransactionTypeEarnings))
		require.NoError(t, err, "other transaction type for the same order is fine")

		got, err := s.Wallet().GetOrderTransaction(t.Context(), order.ID, models.TransactionTypePayment)
		require.NoError(t, err)
		require.Equal(t, created.ID, got.ID)

		_, err = s.Wallet().GetOrderTransaction(t.Context(), uuid.New(), models.TransactionTypePayment)
		require.ErrorIs(t, err, apperrors.ErrTransactionNotFound)
	})

	t.Run("transactions without order are not limited", func(t *testing.T) {
		s := newStorage(t)
		wallet, err := s.Wallet().UpsertWallet(t.Context(), "customer-1", "USD")
		require.NoError(t, err)

		for i := range 2 {
			_, err := s.Wallet().CreateTransaction(t.Context(), models.Transaction{
				ID:        uuid.New(),
				WalletID:  wallet.ID,
				OwnerRef:  wallet.OwnerRef,
				Type:      models.TransactionTypeCredit,
				Status:    models.TransactionStatusCompleted,
				Amount:    decimal.NewFromInt(5),
				CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
			})
			require.NoError(t, err)
		}

		transactions, err := s.Wallet().ListTransactions(t.Context(), repository.ListTransactionsOpts{OwnerRef: "customer-1"})
		require.NoError(t, err)
		require.Len(t, transactions, 2)
		require.True(t, transactions[0].CreatedAt.After(transactions[1].CreatedAt), "newest first")

		filtered, err := s.Wallet().ListTransactions(t.Context(), repository.ListTransactionsOpts{
			OwnerRef: "customer-1",
			Types:    []string{models.TransactionTypePayment},
		})
		require.NoError(t, err)
		require.Empty(t, filtered)
	})
}

func testChat(t *testing.T, newStorage NewStorageFunc) {
	t.Run("channel created once", func(t *testing.T) {
		s := newStorage(t)
		order := CreateOrder(t, s, "customer-1")
		channel := models.Channel{OrderID: order.ID, CustomerRef: "customer-1", DriverRef: "driver-1", CreatedAt: time.Now()}

		_, created, err := s.Chat().CreateChannel(t.Context(), channel)
		require.NoError(t, err)
		require.True(t, created)

		channel.DriverRef = "driver-2"
		stored, created, err := s.Chat().CreateChannel(t.Context(), channel)
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, "driver-1", stored.DriverRef, "existing channel returned as is")
	})

	t.Run("message needs channel", func(t *testing.T) {
		s := newStorage(t)
		order := CreateOrder(t, s, "customer-1")

		_, _, err := s.Chat().CreateMessage(t.Context(), models.Message{
			OrderID: order.ID, SenderRef: "customer-1", Kind: models.MessageKindUser, Text: "hi", CreatedAt: time.Now(),
		})

		require.ErrorIs(t, err, apperrors.ErrChannelNotFound)
	})

	t.Run("dedup messages", func(t *testing.T) {
		s := newStorage(t)
		order := CreateOrder(t, s, "customer-1")
		_, _, err := s.Chat().CreateChannel(t.Context(), models.Channel{
			OrderID: order.ID, CustomerRef: "customer-1", DriverRef: "driver-1", CreatedAt: time.Now(),
		})
		require.NoError(t, err)

		key := "driver_assigned"
		system := models.Message{OrderID: order.ID, SenderRef: "system", Kind: models.MessageKindSystem, Text: "Driver assigned", DedupKey: &key, CreatedAt: time.Now()}

		first, created, err := s.Chat().CreateMessage(t.Context(), system)
		require.NoError(t, err)
		require.True(t, created)

		second, created, err := s.Chat().CreateMessage(t.Context(), system)
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, first.ID, second.ID)

		_, created, err = s.Chat().CreateMessage(t.Context(), models.Message{
			OrderID: order.ID, SenderRef: "customer-1", Kind: models.MessageKindUser, Text: "where are you?", CreatedAt: time.Now(),
		})
		require.NoError(t, err)
		require.True(t, created)

		messages, err := s.Chat().ListMessages(t.Context(), order.ID)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		require.Equal(t, "Driver assigned", messages[0].Text)
	})
}

func testEffects(t *testing.T, newStorage NewStorageFunc) {
	t.Run("create effects once per kind", func(t *testing.T) {
		s := newStorage(t)
		order := CreateOrder(t, s, "customer-1")
		now := time.Now()

		created, err := s.Effect().CreateEffects(t.Context(), []models.Effect{
			models.NewEffect(order.ID, models.EffectCustomerPayment, now),
			models.NewEffect(order.ID, models.EffectChatChannel, now),
		})
		require.NoError(t, err)
		require.Len(t, created, 2)

		_, err = s.Effect().MarkDone(t.Context(), created[0].ID, now)
		require.NoError(t, err)

		again, err := s.Effect().CreateEffects(t.Context(), []models.Effect{
			models.NewEffect(order.ID, models.EffectCustomerPayment, now),
		})
		require.NoError(t, err)
		require.Len(t, again, 1)
		require.Equal(t, created[0].ID, again[0].ID, "existing effect returned")
		require.Equal(t, models.EffectStatusDone, again[0].Status)
	})

	t.Run("mark failed and list for retry", func(t *testing.T) {
		s := newStorage(t)
		order := CreateOrder(t, s, "customer-1")
		past := time.Now().Add(-time.Hour)

		created, err := s.Effect().CreateEffects(t.Context(), []models.Effect{
			models.NewEffect(order.ID, models.EffectCustomerPayment, past),
			models.NewEffect(order.ID, models.EffectDriverEarnings, past),
		})
		require.NoError(t, err)

		failed, err := s.Effect().MarkFailed(t.Context(), created[0].ID, "ledger is down", past)
		require.NoError(t, err)
		require.Equal(t, models.EffectStatusFailed, failed.Status)
		require.Equal(t, 1, failed.Attempts)
		require.Equal(t, "ledger is down", failed.LastError)

		_, err = s.Effect().MarkDone(t.Context(), created[1].ID, past)
		require.NoError(t, err)

		before := time.Now().Add(-time.Minute)
		retry, err := s.Effect().ListEffects(t.Context(), repository.ListEffectsOpts{
			Statuses:      []models.EffectStatus{models.EffectStatusPending, models.EffectStatusFailed},
			UpdatedBefore: &before,
		})
		require.NoError(t, err)
		require.Len(t, retry, 1)
		require.Equal(t, created[0].ID, retry[0].ID)

		byOrder, err := s.Effect().ListEffects(t.Context(), repository.ListEffectsOpts{OrderID: &order.ID})
		require.NoError(t, err)
		require.Len(t, byOrder, 2)
	})

	t.Run("mark not existed", func(t *testing.T) {
		s := newStorage(t)

		_, err := s.Effect().MarkDone(t.Context(), uuid.New(), time.Now())

		require.ErrorIs(t, err, apperrors.ErrEffectNotFound)
	})
}

func testInTx(t *testing.T, newStorage NewStorageFunc) {
	t.Run("commit", func(t *testing.T) {
		s := newStorage(t)
		var order models.Order

		err := s.InTx(t.Context(), func(tx repository.Storage) error {
			order = CreateOrder(t, tx, "customer-1")
			return nil
		})
		require.NoError(t, err)

		_, err = s.Order().GetOrder(t.Context(), order.ID)
		require.NoError(t, err)
	})

	t.Run("rollback", func(t *testing.T) {
		s := newStorage(t)
		var order models.Order
		errBoom := errors.New("boom")

		err := s.InTx(t.Context(), func(tx repository.Storage) error {
			order = CreateOrder(t, tx, "customer-1")
			return errBoom
		})
		require.ErrorIs(t, err, errBoom)

		_, err = s.Order().GetOrder(t.Context(), order.ID)
		require.ErrorIs(t, err, apperrors.ErrOrderNotFound, "order must be rolled back")
	})

	t.Run("nested rollback keeps outer", func(t *testing.T) {
		s := newStorage(t)
		var outer, inner models.Order

		err := s.InTx(t.Context(), func(tx repository.Storage) error {
			outer = CreateOrder(t, tx, "customer-1")

			err := tx.InTx(t.Context(), func(tx repository.Storage) error {
				inner = CreateOrder(t, tx, "customer-2")
				return errors.New("inner failed")
			})
			require.Error(t, err)
			return nil
		})
		require.NoError(t, err)

		_, err = s.Order().GetOrder(t.Context(), outer.ID)
		require.NoError(t, err)
		_, err = s.Order().GetOrder(t.Context(), inner.ID)
		require.ErrorIs(t, err, apperrors.ErrOrderNotFound)
	})
}
