package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/courier/internal/apperrors"
	"github.com/nkiryanov/courier/internal/models"
	"github.com/nkiryanov/courier/internal/repository"
	"github.com/nkiryanov/courier/internal/service/effects"
)

// Warning about effect that failed after the transition committed
type Warning struct {
	Effect models.EffectKind `json:"effect"`
	Error  string            `json:"error"`
}

type TransitionResult struct {
	Order   models.Order
	From    models.OrderStatus
	Effects []models.Effect

	// Set if some effects failed. The transition is committed anyway,
	// failed effects are retried in background
	Warning  error
	Warnings []Warning
}

// RequestTransition moves the order to the target status on behalf of the actor.
//
// Target is an action (accept, complete, cancel, reject) or a status name.
// Only drivers take unassigned orders and reject them.
// The edge is checked against the stored status, and the status write is conditioned on it,
// so of concurrent requests for the same order at most one succeeds; the others get
// apperrors.ErrConcurrentModification. Effects of the transition are stored with it and
// dispatched after commit; their failures never undo the transition.
func (s *OrderService) RequestTransition(ctx context.Context, orderID uuid.UUID, actor models.Actor, target string) (TransitionResult, error) {
	to, ok := models.ParseTarget(target)
	if !ok {
		return TransitionResult{}, fmt.Errorf("%w: unknown target %q", apperrors.ErrInvalidTransition, target)
	}

	order, err := s.storage.Order().GetOrder(ctx, orderID)
	if err != nil {
		return TransitionResult{}, err
	}

	from := order.Status
	if !models.CanTransition(from, to) {
		return TransitionResult{}, fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, from, to)
	}

	assign := order.DriverRef == nil && models.AssignsDriver(to)
	if err := checkActor(order, actor, to, assign); err != nil {
		return TransitionResult{}, err
	}

	params := repository.UpdateStatusParams{
		ID:          order.ID,
		FromStatus:  from,
		FromVersion: order.StatusVersion,
		ToStatus:    to,
		UpdatedAt:   time.Now(),
	}
	if assign {
		params.AssignDriver = &actor.Ref
	}

	result := TransitionResult{From: from}
	err = s.storage.InTx(ctx, func(tx repository.Storage) error {
		updated, err := tx.Order().UpdateStatus(ctx, params)
		if err != nil {
			return err
		}
		result.Order = updated

		_, err = tx.Order().CreateEvent(ctx, models.OrderEvent{
			OrderID:    updated.ID,
			FromStatus: from,
			ToStatus:   to,
			ActorRef:   actor.Ref,
			CreatedAt:  params.UpdatedAt,
		})
		if err != nil {
			return err
		}

		kinds := effects.Plan(from, to, assign)
		if len(kinds) == 0 {
			return nil
		}
		result.Effects, err = tx.Effect().CreateEffects(ctx, effects.NewEffects(updated.ID, kinds, params.UpdatedAt))
		return err
	})

	switch {
	case errors.Is(err, apperrors.ErrConcurrentModification):
		s.logger.Info("Order transition lost the race", "order_id", order.ID, "actor", actor.Ref, "from", from, "to", to)
		return TransitionResult{}, err
	case err != nil:
		return TransitionResult{}, fmt.Errorf("can't transition order. Err: %w", err)
	}

	s.logger.Info("Order status changed", "order_id", order.ID, "actor", actor.Ref, "from", from, "to", to)
	s.publish(ctx, result.Order)

	result.Warning = s.dispatch(ctx, result.Order, result.Effects)
	result.Warnings = warnings(result.Warning)
	result.Effects = s.reload(ctx, result.Order.ID, result.Effects)

	return result, nil
}

type ReplayResult struct {
	Order    models.Order
	Effects  []models.Effect
	Warning  error
	Warnings []Warning
}

// ReplayEffects stores effects the order owes in its current state and runs every one not done yet.
// Postings are idempotent, so replay never posts twice
func (s *OrderService) ReplayEffects(ctx context.Context, orderID uuid.UUID) (ReplayResult, error) {
	order, err := s.storage.Order().GetOrder(ctx, orderID)
	if err != nil {
		return ReplayResult{}, err
	}

	kinds := effects.Implied(order)
	if _, err := s.storage.Effect().CreateEffects(ctx, effects.NewEffects(order.ID, kinds, time.Now())); err != nil {
		return ReplayResult{}, fmt.Errorf("can't store order effects. Err: %w", err)
	}

	owed, err := s.storage.Effect().ListEffects(ctx, repository.ListEffectsOpts{OrderID: &order.ID})
	if err != nil {
		return ReplayResult{}, fmt.Errorf("can't list order effects. Err: %w", err)
	}

	s.logger.Info("Replaying order effects", "order_id", order.ID, "count", len(owed))
	warning := s.dispatch(ctx, order, owed)

	owed, err = s.storage.Effect().ListEffects(ctx, repository.ListEffectsOpts{OrderID: &order.ID})
	if err != nil {
		return ReplayResult{}, fmt.Errorf("can't list order effects. Err: %w", err)
	}

	return ReplayResult{Order: order, Effects: owed, Warning: warning, Warnings: warnings(warning)}, nil
}

func (s *OrderService) dispatch(ctx context.Context, order models.Order, owed []models.Effect) error {
	if s.dispatcher == nil || len(owed) == 0 {
		return nil
	}

	// The transition is committed, effects outlive the request
	err := s.dispatcher.Dispatch(context.WithoutCancel(ctx), order, owed)
	if err != nil {
		s.logger.Warn("Order effects failed, left for retry", "order_id", order.ID, "error", err)
	}
	return err
}

// reload returns the effects as stored after dispatch, the given ones if listing fails
func (s *OrderService) reload(ctx context.Context, orderID uuid.UUID, planned []models.Effect) []models.Effect {
	if len(planned) == 0 {
		return planned
	}

	stored, err := s.storage.Effect().ListEffects(ctx, repository.ListEffectsOpts{OrderID: &orderID})
	if err != nil {
		s.logger.Warn("Failed to reload order effects", "order_id", orderID, "error", err)
		return planned
	}

	byID := make(map[uuid.UUID]models.Effect, len(stored))
	for _, e := range stored {
		byID[e.ID] = e
	}

	reloaded := make([]models.Effect, 0, len(planned))
	for _, e := range planned {
		if current, ok := byID[e.ID]; ok {
			e = current
		}
		reloaded = append(reloaded, e)
	}
	return reloaded
}

func warnings(err error) []Warning {
	if err == nil {
		return []Warning{}
	}

	var dispatchErr *effects.DispatchError
	if !errors.As(err, &dispatchErr) {
		return []Warning{{Error: err.Error()}}
	}

	list := make([]Warning, 0, len(dispatchErr.Failures))
	for _, f := range dispatchErr.Failures {
		list = append(list, Warning{Effect: f.Effect.Kind, Error: f.Err.Error()})
	}
	return list
}

// checkActor tells whether the actor may move the order to the status.
// assign is true when the transition makes the actor the order driver
func checkActor(order models.Order, actor models.Actor, to models.OrderStatus, assign bool) error {
	if actor.Ref == "" {
		return apperrors.ErrNotParticipant
	}

	// The customer only cancels, never takes the own order
	if actor.Ref == order.CustomerRef {
		if to == models.OrderStatusCancelled {
			return nil
		}
		return fmt.Errorf("%w: customer can't move own order to %s", apperrors.ErrNotParticipant, to)
	}

	switch {
	case assign || to == models.OrderStatusRejected:
		if actor.Role == models.RoleDriver {
			return nil
		}
		return fmt.Errorf("%w: only drivers can move unassigned order to %s, got role %q", apperrors.ErrNotParticipant, to, actor.Role)
	case to == models.OrderStatusCancelled || models.DriverOnly(to):
		if order.HasDriver(actor.Ref) {
			return nil
		}
		return fmt.Errorf("%w: only the order driver can move it to %s", apperrors.ErrNotParticipant, to)
	default:
		return fmt.Errorf("%w: %s", apperrors.ErrNotParticipant, to)
	}
}
