package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/courier/internal/apperrors"
	"github.com/nkiryanov/courier/internal/models"
	"github.com/nkiryanov/courier/internal/repository"
	"github.com/nkiryanov/courier/internal/repository/repotest"
)

func TestStorage(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.Storage {
		return NewStorage()
	})
}

func TestStorage_ConcurrentAccept(t *testing.T) {
	s := NewStorage()
	order := repotest.CreateOrder(t, s, "customer-1")

	const drivers = 20
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
	require.Equal(t, 1, accepted, "exactly one driver has to win")
}
