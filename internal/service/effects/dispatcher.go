package effects

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/courier/internal/apperrors"
	"github.com/nkiryanov/courier/internal/logger"
	"github.com/nkiryanov/courier/internal/models"
	"github.com/nkiryanov/courier/internal/repository"
	"github.com/nkiryanov/courier/internal/service/chat"
	"github.com/nkiryanov/courier/internal/service/ledger"
)

type ledgerPoster interface {
	PostIfAbsent(ctx context.Context, req ledger.PostRequest) (ledger.PostResult, error)
}

type chatService interface {
	EnsureChannel(ctx context.Context, orderID uuid.UUID, customerRef string, driverRef string) (models.Channel, bool, error)
	SendSystemMessage(ctx context.Context, orderID uuid.UUID, dedupKey string, text string) (models.Message, error)
}

var errNoDriver = errors.New("order has no driver")

// Failure of single effect
type Failure struct {
	Effect models.Effect
	Err    error
}

// DispatchError lists effects that failed.
// It matches apperrors.ErrEffectDispatchPartialFailure and every failure cause with errors.Is
type DispatchError struct {
	OrderID  uuid.UUID
	Failures []Failure
}

func (e *DispatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Effect.Kind, f.Err))
	}
	return fmt.Sprintf("%v for order %s: %s", apperrors.ErrEffectDispatchPartialFailure, e.OrderID, strings.Join(parts, "; "))
}

func (e *DispatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, apperrors.ErrEffectDispatchPartialFailure)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

type Dispatcher struct {
	storage repository.Storage
	ledger  ledgerPoster
	chat    chatService
	logger  logger.Logger
}

func NewDispatcher(storage repository.Storage, ledger ledgerPoster, chat chatService, l logger.Logger) *Dispatcher {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Dispatcher{
		storage: storage,
		ledger:  ledger,
		chat:    chat,
		logger:  l,
	}
}

// Dispatch runs every not yet done effect of the order independently.
// Returns *DispatchError if any of them failed, failed effects stay in the outbox for retry.
func (d *Dispatcher) Dispatch(ctx context.Context, order models.Order, effects []models.Effect) error {
	var failures []Failure

	for _, effect := range effects {
		if effect.Status == models.EffectStatusDone {
			continue
		}

		if err := d.execute(ctx, order, effect); err != nil {
			failures = append(failures, Failure{Effect: effect, Err: err})
		}
	}

	if len(failures) > 0 {
		return &DispatchError{OrderID: order.ID, Failures: failures}
	}
	return nil
}

// Run loads the effect order and runs the effect
func (d *Dispatcher) Run(ctx context.Context, effect models.Effect) error {
	order, err := d.storage.Order().GetOrder(ctx, effect.OrderID)
	if err != nil {
		return fmt.Errorf("can't load effect order. Err: %w", err)
	}

	return d.Dispatch(ctx, order, []models.Effect{effect})
}

func (d *Dispatcher) execute(ctx context.Context, order models.Order, effect models.Effect) error {
	err := d.apply(ctx, order, effect.Kind)
	now := time.Now()

	if err != nil {
		d.logger.Error("Order effect failed",
			"order_id", order.ID, "effect", effect.Kind, "attempt", effect.Attempts+1, "error", err)

		if _, markErr := d.storage.Effect().MarkFailed(ctx, effect.ID, err.Error(), now); markErr != nil {
			d.logger.Error("Failed to mark effect failed", "effect_id", effect.ID, "error", markErr)
		}
		return err
	}

	if _, err := d.storage.Effect().MarkDone(ctx, effect.ID, now); err != nil {
		// The effect itself is idempotent, the sweeper will run it again and mark done then
		d.logger.Error("Failed to mark effect done", "effect_id", effect.ID, "error", err)
	}
	d.logger.Debug("Order effect done", "order_id", order.ID, "effect", effect.Kind)

	return nil
}

func (d *Dispatcher) apply(ctx context.Context, order models.Order, kind models.EffectKind) error {
	switch kind {
	case models.EffectCustomerPayment:
		_, err := d.ledger.PostIfAbsent(ctx, ledger.PostRequest{
			OwnerRef:    order.CustomerRef,
			OrderID:     order.ID,
			Purpose:     models.TransactionTypePayment,
			Amount:      order.Price,
			Description: fmt.Sprintf("Payment for order #%s", order.ID),
		})
		return err

	case models.EffectDriverEarnings:
		if order.DriverRef == nil {
			return errNoDriver
		}
		_, err := d.ledger.PostIfAbsent(ctx, ledger.PostRequest{
			OwnerRef:    *order.DriverRef,
			OrderID:     order.ID,
			Purpose:     models.TransactionTypeEarnings,
			Amount:      order.Price,
			Description: fmt.Sprintf("Earnings from order #%s", order.ID),
		})
		return err

	case models.EffectChatChannel:
		if order.DriverRef == nil {
			return errNoDriver
		}
		if _, _, err := d.chat.EnsureChannel(ctx, order.ID, order.CustomerRef, *order.DriverRef); err != nil {
			return err
		}
		_, err := d.chat.SendSystemMessage(ctx, order.ID, chat.DriverAssignedKey, chat.DriverAssignedText)
		return err

	default:
		return fmt.Errorf("unknown effect kind %q", kind)
	}
}
