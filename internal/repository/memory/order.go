package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/nkiryanov/courier/internal/apperrors"
	"github.com/nkiryanov/courier/internal/models"
	"github.com/nkiryanov/courier/internal/repository"
)

type OrderRepo struct {
	s *Storage
}

func (r *OrderRepo) CreateOrder(_ context.Context, o models.Order) (models.Order, error) {
	err := r.s.do(func(d *dataset) error {
		d.orders[o.ID] = o
		return nil
	})
	return o, err
}

func (r *OrderRepo) GetOrder(_ context.Context, id uuid.UUID) (models.Order, error) {
	var order models.Order
	err := r.s.do(func(d *dataset) error {
		o, ok := d.orders[id]
		if !ok {
			return apperrors.ErrOrderNotFound
		}
		order = o
		return nil
	})
	return order, err
}

func (r *OrderRepo) ListOrders(_ context.Context, opts repository.ListOrdersOpts) ([]models.Order, error) {
	orders := []models.Order{}
	err := r.s.do(func(d *dataset) error {
		for _, o := range d.orders {
			if opts.ActorRef != "" && !o.IsParticipant(opts.ActorRef) {
				continue
			}
			if len(opts.Statuses) > 0 && !slices.Contains(opts.Statuses, o.Status) {
				continue
			}
			if opts.Unassigned && o.DriverRef != nil {
				continue
			}
			orders = append(orders, o)
		}
		return nil
	})

	slices.SortFunc(orders, func(a, b models.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	if opts.Limit > 0 && len(orders) > opts.Limit {
		orders = orders[:opts.Limit]
	}

	return orders, err
}

func (r *OrderRepo) UpdateStatus(_ context.Context, arg repository.UpdateStatusParams) (models.Order, error) {
	var order models.Order
	err := r.s.do(func(d *dataset) error {
		o, ok := d.orders[arg.ID]
		if !ok || o.Status != arg.FromStatus || o.StatusVersion != arg.FromVersion {
			return apperrors.ErrConcurrentModification
		}
		if arg.AssignDriver != nil {
			if o.DriverRef != nil {
				return apperrors.ErrConcurrentModification
			}
			driver := *arg.AssignDriver
			o.DriverRef = &driver
		}

		o.Status = arg.ToStatus
		o.StatusVersion++
		o.UpdatedAt = arg.UpdatedAt
		d.orders[o.ID] = o
		order = o
		return nil
	})
	return order, err
}

func (r *OrderRepo) CreateEvent(_ context.Context, e models.OrderEvent) (models.OrderEvent, error) {
	err := r.s.do(func(d *dataset) error {
		if _, ok := d.orders[e.OrderID]; !ok {
			return apperrors.ErrOrderNotFound
		}
		d.eventSeq++
		e.ID = d.eventSeq
		d.events = append(d.events, e)
		return nil
	})
	return e, err
}

func (r *OrderRepo) ListEvents(_ context.Context, orderID uuid.UUID) ([]models.OrderEvent, error) {
	events := []models.OrderEvent{}
	err := r.s.do(func(d *dataset) error {
		for _, e := range d.events {
			if e.OrderID == orderID {
				events = append(events, e)
			}
		}
		return nil
	})
	return events, err
}
