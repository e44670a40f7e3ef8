package order

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

const DefaultAvailableLimit = 50

type changePublisher interface {
	Publish(ctx context.Context, change models.Change) error
}

type effectDispatcher interface {
	Dispatch(ctx context.Context, order models.Order, effects []models.Effect) error
}

type OrderService struct {
	// Repository to access long term data
	storage repository.Storage

	dispatcher effectDispatcher
	publisher  changePublisher
	currency   string
	logger     logger.Logger
}

func NewService(storage repository.Storage, dispatcher effectDispatcher, publisher changePublisher, currency string, l logger.Logger) *OrderService {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &OrderService{
		storage:    storage,
		dispatcher: dispatcher,
		publisher:  publisher,
		currency:   currency,
		logger:     l,
	}
}

type CreateCommand struct {
	CustomerRef string
	Price       decimal.Decimal
	Pickup      string
	Dropoff     string
}

// Create stores new pending order with its first history event
func (s *OrderService) Create(ctx context.Context, cmd CreateCommand) (models.Order, error) {
	if cmd.CustomerRef == "" {
		return models.Order{}, fmt.Errorf("%w: customer is required", apperrors.ErrBadRequest)
	}
	if cmd.Price.IsNegative() {
		return models.Order{}, apperrors.ErrInvalidAmount
	}

	now := time.Now()
	order := models.Order{
		ID:          uuid.New(),
		Status:      models.OrderStatusPending,
		CustomerRef: cmd.CustomerRef,
		Price:       cmd.Price,
		Currency:    s.currency,
		Pickup:      cmd.Pickup,
		Dropoff:     cmd.Dropoff,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		var err error
		order, err = tx.Order().CreateOrder(ctx, order)
		if err != nil {
			return err
		}

		_, err = tx.Order().CreateEvent(ctx, models.OrderEvent{
			OrderID:    order.ID,
			FromStatus: models.OrderStatusNone,
			ToStatus:   models.OrderStatusPending,
			ActorRef:   cmd.CustomerRef,
			CreatedAt:  now,
		})
		return err
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("can't create order. Err: %w", err)
	}

	s.logger.Info("Order created", "order_id", order.ID, "customer", order.CustomerRef, "price", order.Price)
	s.publish(ctx, order)

	return order, nil
}

func (s *OrderService) Get(ctx context.Context, id uuid.UUID) (models.Order, error) {
	return s.storage.Order().GetOrder(ctx, id)
}

// ListByActor returns orders the actor is customer or driver of, newest first
func (s *OrderService) ListByActor(ctx context.Context, actorRef string, statuses []models.OrderStatus) ([]models.Order, error) {
	return s.storage.Order().ListOrders(ctx, repository.ListOrdersOpts{
		ActorRef: actorRef,
		Statuses: statuses,
	})
}

// ListAvailable returns pending orders nobody has taken yet
func (s *OrderService) ListAvailable(ctx context.Context, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = DefaultAvailableLimit
	}

	return s.storage.Order().ListOrders(ctx, repository.ListOrdersOpts{
		Statuses:   []models.OrderStatus{models.OrderStatusPending},
		Unassigned: true,
		Limit:      limit,
	})
}

// History returns the order status events oldest first
func (s *OrderService) History(ctx context.Context, id uuid.UUID) ([]models.OrderEvent, error) {
	if _, err := s.storage.Order().GetOrder(ctx, id); err != nil {
		return nil, err
	}

	return s.storage.Order().ListEvents(ctx, id)
}

func (s *OrderService) publish(ctx context.Context, order models.Order) {
	if s.publisher == nil {
		return
	}

	change, err := models.NewChange(
		models.EntityOrder,
		order.ID.String(),
		int64(order.StatusVersion),
		order.Audience(),
		order,
		order.UpdatedAt,
	)
	if err == nil {
		err = s.publisher.Publish(ctx, change)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("Failed to publish order change", "order_id", order.ID, "error", err)
	}
}
