package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	MessageKindUser   = "user"
	MessageKindSystem = "system"
)

type Channel struct {
	OrderID     uuid.UUID
	CustomerRef string
	DriverRef   string
	CreatedAt   time.Time
}

func (c Channel) IsParticipant(ref string) bool {
	return c.CustomerRef == ref || c.DriverRef == ref
}

func (c Channel) Audience() []string {
	return []string{c.CustomerRef, c.DriverRef}
}

type Message struct {
	ID        int64     `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	SenderRef string    `json:"sender_ref"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	DedupKey  *string   `json:"-"` // system messages only, unique per order
	CreatedAt time.Time `json:"created_at"`
}
