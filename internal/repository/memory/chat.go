package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/courier/internal/apperrors"
	"github.com/nkiryanov/courier/internal/models"
)

type ChatRepo struct {
	s *Storage
}

func (r *ChatRepo) CreateChannel(_ context.Context, ch models.Channel) (models.Channel, bool, error) {
	var created bool
	err := r.s.do(func(d *dataset) error {
		if stored, ok := d.channels[ch.OrderID]; ok {
			ch = stored
			return nil
		}
		d.channels[ch.OrderID] = ch
		created = true
		return nil
	})
	return ch, created, err
}

func (r *ChatRepo) GetChannel(_ context.Context, orderID uuid.UUID) (models.Channel, error) {
	var channel models.Channel
	err := r.s.do(func(d *dataset) error {
		ch, ok := d.channels[orderID]
		if !ok {
			return apperrors.ErrChannelNotFound
		}
		channel = ch
		return nil
	})
	return channel, err
}

func (r *ChatRepo) CreateMessage(_ context.Context, m models.Message) (models.Message, bool, error) {
	var created bool
	err := r.s.do(func(d *dataset) error {
		if _, ok := d.channels[m.OrderID]; !ok {
			return apperrors.ErrChannelNotFound
		}
		if m.DedupKey != nil {
			for _, stored := range d.messages {
				if stored.OrderID == m.OrderID && stored.DedupKey != nil && *stored.DedupKey == *m.DedupKey {
					m = stored
					return nil
				}
			}
		}

		d.messageSeq++
		m.ID = d.messageSeq
		d.messages = append(d.messages, m)
		created = true
		return nil
	})
	return m, created, err
}

func (r *ChatRepo) ListMessages(_ context.Context, orderID uuid.UUID) ([]models.Message, error) {
	messages := []models.Message{}
	err := r.s.do(func(d *dataset) error {
		for _, m := range d.messages {
			if m.OrderID == orderID {
				messages = append(messages, m)
			}
		}
		return nil
	})
	return messages, err
}
