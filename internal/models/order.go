package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusNone      OrderStatus = "none"
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusAccepted  OrderStatus = "accepted"
	OrderStatusEnRoute   OrderStatus = "en_route"
	OrderStatusArrived   OrderStatus = "arrived"
	OrderStatusPickedUp  OrderStatus = "picked_up"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// Driver facing action vocabulary. Every action maps onto a status, see ParseTarget.
const (
	ActionAccept   = "accept"
	ActionComplete = "complete"
	ActionCancel   = "cancel"
	ActionReject   = "reject"
)

type Order struct {
	ID            uuid.UUID       `json:"id"`
	Status        OrderStatus     `json:"status"`
	StatusVersion int             `json:"status_version"`
	CustomerRef   string          `json:"customer_ref"`
	DriverRef     *string         `json:"driver_ref,omitempty"` // nil until a driver is assigned
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	Pickup        string          `json:"pickup"`
	Dropoff       string          `json:"dropoff"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// HasDriver reports whether ref is the assigned driver
func (o Order) HasDriver(ref string) bool {
	return o.DriverRef != nil && *o.DriverRef == ref
}

// IsParticipant reports whether ref is the customer or the assigned driver
func (o Order) IsParticipant(ref string) bool {
	return o.CustomerRef == ref || o.HasDriver(ref)
}

// Audience returns refs interested in the order changes
func (o Order) Audience() []string {
	if o.DriverRef == nil {
		return []string{o.CustomerRef}
	}
	return []string{o.CustomerRef, *o.DriverRef}
}

type OrderEvent struct {
	ID         int64
	OrderID    uuid.UUID
	FromStatus OrderStatus
	ToStatus   OrderStatus
	ActorRef   string
	CreatedAt  time.Time
}

// AllowedTransitions represents the order state flow as code.
// Terminal statuses have no entry.
var AllowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:  {OrderStatusAccepted, OrderStatusCancelled, OrderStatusRejected, OrderStatusCompleted},
	OrderStatusAccepted: {OrderStatusEnRoute, OrderStatusCancelled, OrderStatusCompleted},
	OrderStatusEnRoute:  {OrderStatusArrived, OrderStatusCompleted},
	OrderStatusArrived:  {OrderStatusPickedUp, OrderStatusCompleted},
	OrderStatusPickedUp: {OrderStatusDelivered, OrderStatusCompleted},
}

var actionStatuses = map[string]OrderStatus{
	ActionAccept:   OrderStatusAccepted,
	ActionComplete: OrderStatusCompleted,
	ActionCancel:   OrderStatusCancelled,
	ActionReject:   OrderStatusRejected,
}

var knownStatuses = map[OrderStatus]struct{}{
	OrderStatusPending:   {},
	OrderStatusAccepted:  {},
	OrderStatusEnRoute:   {},
	OrderStatusArrived:   {},
	OrderStatusPickedUp:  {},
	OrderStatusDelivered: {},
	OrderStatusCompleted: {},
	OrderStatusCancelled: {},
	OrderStatusRejected:  {},
}

func CanTransition(from, to OrderStatus) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is accepted from the status
func (s OrderStatus) IsTerminal() bool {
	_, ok := AllowedTransitions[s]
	return !ok
}

// ParseTarget normalizes a transition target expressed either as an action
// (accept, complete, cancel, reject) or as a raw status name.
func ParseTarget(target string) (OrderStatus, bool) {
	t := strings.ToLower(strings.TrimSpace(target))

	if s, ok := actionStatuses[t]; ok {
		return s, true
	}
	return ParseStatus(t)
}

// ParseStatus accepts status names only, actions are not statuses
func ParseStatus(status string) (OrderStatus, bool) {
	s := OrderStatus(strings.ToLower(strings.TrimSpace(status)))
	if _, ok := knownStatuses[s]; ok {
		return s, true
	}
	return "", false
}

// AssignsDriver reports whether a transition to the status takes an unassigned order
func AssignsDriver(to OrderStatus) bool {
	return to == OrderStatusAccepted || to == OrderStatusCompleted
}

// DriverOnly reports whether only the assigned driver may move an order to the status
func DriverOnly(to OrderStatus) bool {
	switch to {
	case OrderStatusEnRoute, OrderStatusArrived, OrderStatusPickedUp, OrderStatusDelivered, OrderStatusCompleted:
		return true
	default:
		return false
	}
}
