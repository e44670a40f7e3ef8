package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/courier/internal/models"
)

func change(t *testing.T, id string, version int64, audience ...string) models.Change {
	t.Helper()

	c, err := models.NewChange(models.EntityOrder, id, version, audience, map[string]int64{"version": version}, time.Now())
	require.NoError(t, err)
	return c
}

func receive(t *testing.T, sub *Subscription) models.Change {
	t.Helper()

	select {
	case c, ok := <-sub.Changes():
		require.True(t, ok, "subscription closed unexpectedly")
		return c
	case <-time.After(time.Second):
		require.FailNow(t, "change not delivered")
		return models.Change{}
	}
}

func requireEmpty(t *testing.T, sub *Subscription) {
	t.Helper()

	select {
	case c := <-sub.Changes():
		require.FailNow(t, "unexpected change", "got %s v%d", c.Key(), c.Version)
	default:
	}
}

func TestHub_Publish(t *testing.T) {
	t.Run("deliver to audience only", func(t *testing.T) {
		hub := NewHub(0, nil)
		customer := hub.Subscribe("customer-1")
		stranger := hub.Subscribe("stranger")

		err := hub.Publish(t.Context(), change(t, "order-1", 1, "customer-1", "driver-1"))
		require.NoError(t, err)

		got := receive(t, customer)
		require.Equal(t, "order-1", got.EntityID)
		require.JSONEq(t, `{"version": 1}`, string(got.State))
		requireEmpty(t, stranger)
	})

	t.Run("stale and repeated changes dropped", func(t *testing.T) {
		hub := NewHub(0, nil)
		sub := hub.Subscribe("customer-1")

		require.NoError(t, hub.Publish(t.Context(), change(t, "order-1", 2, "customer-1")))
		require.NoError(t, hub.Publish(t.Context(), change(t, "order-1", 1, "customer-1")))
		require.NoError(t, hub.Publish(t.Context(), change(t, "order-1", 2, "customer-1")))
		require.NoError(t, hub.Publish(t.Context(), change(t, "order-1", 3, "customer-1")))

		require.EqualValues(t, 2, receive(t, sub).Version)
		require.EqualValues(t, 3, receive(t, sub).Version)
		requireEmpty(t, sub)
	})

	t.Run("versions are tracked per entity", func(t *testing.T) {
		hub := NewHub(0, nil)
		sub := hub.Subscribe("customer-1")

		require.NoError(t, hub.Publish(t.Context(), change(t, "order-1", 5, "customer-1")))
		require.NoError(t, hub.Publish(t.Context(), change(t, "order-2", 1, "customer-1")))

		require.Equal(t, "order-1", receive(t, sub).EntityID)
		require.Equal(t, "order-2", receive(t, sub).EntityID)
	})

	t.Run("lagging subscriber closed", func(t *testing.T) {
		hub := NewHub(2, nil)
		slow := hub.Subscribe("customer-1")
		fast := hub.Subscribe("customer-1")

		for v := range int64(3) {
			require.NoError(t, hub.Publish(t.Context(), change(t, "order-1", v+1, "customer-1")))
			if v == 0 {
				receive(t, fast)
			}
		}

		// Buffered changes are still readable, then the channel is closed
		receive(t, slow)
		receive(t, slow)
		_, ok := <-slow.Changes()
		require.False(t, ok, "lagging subscriber has to be closed")

		receive(t, fast)
		receive(t, fast)
	})

	t.Run("close subscription", func(t *testing.T) {
		hub := NewHub(0, nil)
		sub := hub.Subscribe("customer-1")

		sub.Close()
		sub.Close()

		_, ok := <-sub.Changes()
		require.False(t, ok)
		require.NoError(t, hub.Publish(t.Context(), change(t, "order-1", 1, "customer-1")))
	})

	t.Run("close hub", func(t *testing.T) {
		hub := NewHub(0, nil)
		first := hub.Subscribe("customer-1")
		second := hub.Subscribe("driver-1")

		hub.Close()
		first.Close()

		_, ok := <-first.Changes()
		require.False(t, ok)
		_, ok = <-second.Changes()
		require.False(t, ok)
	})
}

func TestPublishers(t *testing.T) {
	first := NewHub(0, nil)
	second := NewHub(0, nil)
	subFirst := first.Subscribe("customer-1")
	subSecond := second.Subscribe("customer-1")

	err := Publishers{first, second}.Publish(t.Context(), change(t, "order-1", 1, "customer-1"))

	require.NoError(t, err)
	receive(t, subFirst)
	receive(t, subSecond)
}
