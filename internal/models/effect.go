package models

import (
	"time"

	"github.com/google/uuid"
)

type EffectKind string

const (
	EffectCustomerPayment EffectKind = "customer_payment"
	EffectChatChannel     EffectKind = "chat_channel"
	EffectDriverEarnings  EffectKind = "driver_earnings"
)

type EffectStatus string

const (
	EffectStatusPending EffectStatus = "pending"
	EffectStatusDone    EffectStatus = "done"
	EffectStatusFailed  EffectStatus = "failed"
)

// Effect is an outbox record: a side effect owed by a committed order transition
type Effect struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Kind      EffectKind
	Status    EffectStatus
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewEffect(orderID uuid.UUID, kind EffectKind, now time.Time) Effect {
	return Effect{
		ID:        uuid.New(),
		OrderID:   orderID,
		Kind:      kind,
		Status:    EffectStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
