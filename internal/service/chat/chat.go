package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/courier/internal/apperrors"
	"github.com/nkiryanov/courier/internal/logger"
	"github.com/nkiryanov/courier/internal/models"
	"github.com/nkiryanov/courier/internal/repository"
)

// Sender of system messages
const SystemSender = "system"

const (
	DriverAssignedKey  = "driver_assigned"
	DriverAssignedText = "Driver assigned"
)

const maxMessageLength = 4000

type changePublisher interface {
	Publish(ctx context.Context, change models.Change) error
}

type Service struct {
	storage   repository.Storage
	publisher changePublisher
	logger    logger.Logger
}

func NewService(storage repository.Storage, publisher changePublisher, l logger.Logger) *Service {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		storage:   storage,
		publisher: publisher,
		logger:    l,
	}
}

// EnsureChannel creates the order channel unless it exists
func (s *Service) EnsureChannel(ctx context.Context, orderID uuid.UUID, customerRef string, driverRef string) (models.Channel, bool, error) {
	if customerRef == "" || driverRef == "" {
		return models.Channel{}, false, fmt.Errorf("%w: channel needs customer and driver", apperrors.ErrBadRequest)
	}

	channel, created, err := s.storage.Chat().CreateChannel(ctx, models.Channel{
		OrderID:     orderID,
		CustomerRef: customerRef,
		DriverRef:   driverRef,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return channel, false, fmt.Errorf("can't create chat channel. Err: %w", err)
	}

	if created {
		s.logger.Info("Chat channel created", "order_id", orderID)
	}
	return channel, created, nil
}

// SendMessage stores message of the channel participant
func (s *Service) SendMessage(ctx context.Context, orderID uuid.UUID, senderRef string, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > maxMessageLength {
		return models.Message{}, fmt.Errorf("%w: message text must be 1..%d characters", apperrors.ErrBadRequest, maxMessageLength)
	}

	channel, err := s.storage.Chat().GetChannel(ctx, orderID)
	if err != nil {
		return models.Message{}, err
	}
	if !channel.IsParticipant(senderRef) {
		return models.Message{}, apperrors.ErrNotParticipant
	}

	message, _, err := s.storage.Chat().CreateMessage(ctx, models.Message{
		OrderID:   orderID,
		SenderRef: senderRef,
		Kind:      models.MessageKindUser,
		Text:      text,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return message, fmt.Errorf("can't store message. Err: %w", err)
	}

	s.publish(ctx, channel, message)
	return message, nil
}

// SendSystemMessage stores system message once per order and dedup key
func (s *Service) SendSystemMessage(ctx context.Context, orderID uuid.UUID, dedupKey string, text string) (models.Message, error) {
	channel, err := s.storage.Chat().GetChannel(ctx, orderID)
	if err != nil {
		return models.Message{}, err
	}

	message, created, err := s.storage.Chat().CreateMessage(ctx, models.Message{
		OrderID:   orderID,
		SenderRef: SystemSender,
		Kind:      models.MessageKindSystem,
		Text:      text,
		DedupKey:  &dedupKey,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return message, fmt.Errorf("can't store system message. Err: %w", err)
	}

	if created {
		s.publish(ctx, channel, message)
	}
	return message, nil
}

// ListMessages returns channel messages oldest first.
// Only participants can read them
func (s *Service) ListMessages(ctx context.Context, orderID uuid.UUID, actorRef string) ([]models.Message, error) {
	channel, err := s.storage.Chat().GetChannel(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !channel.IsParticipant(actorRef) {
		return nil, apperrors.ErrNotParticipant
	}

	messages, err := s.storage.Chat().ListMessages(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("can't list messages. Err: %w", err)
	}

	return messages, nil
}

// publish sends the message as its own entity: messages never supersede each other
func (s *Service) publish(ctx context.Context, channel models.Channel, message models.Message) {
	if s.publisher == nil {
		return
	}

	change, err := models.NewChange(
		models.EntityMessage,
		strconv.FormatInt(message.ID, 10),
		message.ID,
		channel.Audience(),
		message,
		message.CreatedAt,
	)
	if err == nil {
		err = s.publisher.Publish(ctx, change)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("Failed to publish message change", "order_id", message.OrderID, "error", err)
	}
}
