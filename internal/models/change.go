package models

import (
	"encoding/json"
	"time"
)

const (
	EntityOrder   = "order"
	EntityWallet  = "wallet"
	EntityMessage = "message"
)

// Change is a committed state change broadcast to interested actors.
// Version grows monotonically per entity and orders changes of the same entity.
type Change struct {
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Version    int64           `json:"version"`
	Audience   []string        `json:"audience"`
	State      json.RawMessage `json:"new_state"`
	At         time.Time       `json:"at"`
}

// NewChange encodes state as the change payload
func NewChange(entityType, entityID string, version int64, audience []string, state any, at time.Time) (Change, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return Change{}, err
	}
	return Change{
		EntityType: entityType,
		EntityID:   entityID,
		Version:    version,
		Audience:   audience,
		State:      raw,
		At:         at,
	}, nil
}

func (c Change) Key() string {
	return c.EntityType + ":" + c.EntityID
}

func (c Change) Concerns(ref string) bool {
	for _, a := range c.Audience {
		if a == ref {
			return true
		}
	}
	return false
}
