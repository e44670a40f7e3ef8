// Package effects runs side effects owed by committed order transitions.
//
// Effects are planned and stored with the transition (outbox), dispatched right after commit,
// and retried by the sweeper until done. Every executor is idempotent, so a retry never
// posts twice.
package effects

import (
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/courier/internal/models"
)

// Plan returns effects owed by the transition.
// assigned is true when the transition assigns the driver.
func Plan(from, to models.OrderStatus, assigned bool) []models.EffectKind {
	var kinds []models.EffectKind

	if to == models.OrderStatusAccepted || (from == models.OrderStatusPending && assigned) {
		kinds = append(kinds, models.EffectCustomerPayment, models.EffectChatChannel)
	}
	if to == models.OrderStatusDelivered || to == models.OrderStatusCompleted {
		kinds = append(kinds, models.EffectDriverEarnings)
	}

	return kinds
}

// Implied returns effects the order owes in its current state, whatever path it took
func Implied(order models.Order) []models.EffectKind {
	var kinds []models.EffectKind

	if order.DriverRef != nil {
		kinds = append(kinds, models.EffectCustomerPayment, models.EffectChatChannel)
	}
	if order.Status == models.OrderStatusDelivered || order.Status == models.OrderStatusCompleted {
		kinds = append(kinds, models.EffectDriverEarnings)
	}

	return kinds
}

// NewEffects builds pending outbox records of the kinds
func NewEffects(orderID uuid.UUID, kinds []models.EffectKind, now time.Time) []models.Effect {
	effects := make([]models.Effect, 0, len(kinds))
	for _, kind := range kinds {
		effects = append(effects, models.NewEffect(orderID, kind, now))
	}
	return effects
}
