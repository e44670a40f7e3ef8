package chat

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/courier/internal/apperrors"
	"github.com/nkiryanov/courier/internal/models"
	"github.com/nkiryanov/courier/internal/repository/memory"
	"github.com/nkiryanov/courier/internal/repository/repotest"
	"github.com/nkiryanov/courier/internal/service/notify"
)

func TestChat(t *testing.T) {
	// Channel of a stored order between customer-1 and driver-1
	setup := func(t *testing.T) (*Service, *notify.Hub, uuid.UUID) {
		storage := memory.NewStorage()
		hub := notify.NewHub(0, nil)
		s := NewService(storage, hub, nil)

		order := repotest.CreateOrder(t, storage, "customer-1")
		_, created, err := s.EnsureChannel(t.Context(), order.ID, "customer-1", "driver-1")
		require.NoError(t, err)
		require.True(t, created)

		return s, hub, order.ID
	}

	t.Run("EnsureChannel idempotent", func(t *testing.T) {
		s, _, orderID := setup(t)

		channel, created, err := s.EnsureChannel(t.Context(), orderID, "customer-1", "driver-1")

		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, "driver-1", channel.DriverRef)
	})

	t.Run("SendMessage by participants", func(t *testing.T) {
		s, hub, orderID := setup(t)
		driverSub := hub.Subscribe("driver-1")

		message, err := s.SendMessage(t.Context(), orderID, "customer-1", "  I am at the door ")
		require.NoError(t, err)
		require.Equal(t, "I am at the door", message.Text)
		require.Equal(t, models.MessageKindUser, message.Kind)

		got := <-driverSub.Changes()
		require.Equal(t, models.EntityMessage, got.EntityType)
		require.Equal(t, message.ID, got.Version)
		require.Equal(t, strconv.FormatInt(message.ID, 10), got.EntityID)

		_, err = s.SendMessage(t.Context(), orderID, "driver-1", "coming")
		require.NoError(t, err)

		messages, err := s.ListMessages(t.Context(), orderID, "driver-1")
		require.NoError(t, err)
		require.Len(t, messages, 2)
	})

	t.Run("SendMessage by stranger", func(t *testing.T) {
		s, _, orderID := setup(t)

		_, err := s.SendMessage(t.Context(), orderID, "stranger", "hi")
		require.ErrorIs(t, err, apperrors.ErrNotParticipant)

		_, err = s.ListMessages(t.Context(), orderID, "stranger")
		require.ErrorIs(t, err, apperrors.ErrNotParticipant)
	})

	t.Run("SendMessage empty text", func(t *testing.T) {
		s, _, orderID := setup(t)

		_, err := s.SendMessage(t.Context(), orderID, "customer-1", "   ")

		require.ErrorIs(t, err, apperrors.ErrBadRequest)
	})

	t.Run("SendMessage without channel", func(t *testing.T) {
		s, _, _ := setup(t)

		_, err := s.SendMessage(t.Context(), uuid.New(), "customer-1", "hi")

		require.ErrorIs(t, err, apperrors.ErrChannelNotFound)
	})

	t.Run("SendSystemMessage once", func(t *testing.T) {
		s, _, orderID := setup(t)

		first, err := s.SendSystemMessage(t.Context(), orderID, DriverAssignedKey, DriverAssignedText)
		require.NoError(t, err)
		second, err := s.SendSystemMessage(t.Context(), orderID, DriverAssignedKey, DriverAssignedText)
		require.NoError(t, err)

		require.Equal(t, first.ID, second.ID)
		messages, err := s.ListMessages(t.Context(), orderID, "customer-1")
		require.NoError(t, err)
		require.Len(t, messages, 1)
		require.Equal(t, models.MessageKindSystem, messages[0].Kind)
		require.Equal(t, SystemSender, messages[0].SenderRef)
	})

	t.Run("messages published out of order all delivered", func(t *testing.T) {
		s, hub, orderID := setup(t)
		sub := hub.Subscribe("customer-1")
		channel, err := s.storage.Chat().GetChannel(t.Context(), orderID)
		require.NoError(t, err)

		var stored []models.Message
		for _, text := range []string{"first", "second"} {
			m, _, err := s.storage.Chat().CreateMessage(t.Context(), models.Message{
				OrderID:   orderID,
				SenderRef: "driver-1",
				Kind:      models.MessageKindUser,
				Text:      text,
				CreatedAt: time.Now(),
			})
			require.NoError(t, err)
			stored = append(stored, m)
		}

		// Commits raced: the later message reaches the hub first
		s.publish(t.Context(), channel, stored[1])
		s.publish(t.Context(), channel, stored[0])

		var texts []string
		for range stored {
			change := <-sub.Changes()
			var m models.Message
			require.NoError(t, json.Unmarshal(change.State, &m))
			texts = append(texts, m.Text)
		}
		require.Equal(t, []string{"second", "first"}, texts)

		// Redelivery of the same message is still dropped
		s.publish(t.Context(), channel, stored[0])
		select {
		case change := <-sub.Changes():
			t.Fatalf("repeated change delivered: %s", change.Key())
		default:
		}
	})
}
