package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/courier/internal/apperrors"
	"github.com/nkiryanov/courier/internal/models"
	"github.com/nkiryanov/courier/internal/repository"
)

type EffectRepo struct {
	s *Storage
}

func (r *EffectRepo) CreateEffects(_ context.Context, effects []models.Effect) ([]models.Effect, error) {
	stored := make([]models.Effect, 0, len(effects))
	err := r.s.do(func(d *dataset) error {
		for _, e := range effects {
			idx := slices.IndexFunc(d.effects, func(s models.Effect) bool {
				return s.OrderID == e.OrderID && s.Kind == e.Kind
			})
			if idx >= 0 {
				stored = append(stored, d.effects[idx])
				continue
			}
			d.effects = append(d.effects, e)
			stored = append(stored, e)
		}
		return nil
	})
	return stored, err
}

func (r *EffectRepo) MarkDone(_ context.Context, id uuid.UUID, updatedAt time.Time) (models.Effect, error) {
	return r.update(id, func(e *models.Effect) {
		e.Status = models.EffectStatusDone
		e.Attempts++
		e.LastError = ""
		e.UpdatedAt = updatedAt
	})
}

func (r *EffectRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string, updatedAt time.Time) (models.Effect, error) {
	return r.update(id, func(e *models.Effect) {
		e.Status = models.EffectStatusFailed
		e.Attempts++
		e.LastError = reason
		e.UpdatedAt = updatedAt
	})
}

func (r *EffectRepo) update(id uuid.UUID, fn func(e *models.Effect)) (models.Effect, error) {
	var effect models.Effect
	err := r.s.do(func(d *dataset) error {
		idx := slices.IndexFunc(d.effects, func(e models.Effect) bool { return e.ID == id })
		if idx < 0 {
			return apperrors.ErrEffectNotFound
		}
		fn(&d.effects[idx])
		effect = d.effects[idx]
		return nil
	})
	return effect, err
}

func (r *EffectRepo) ListEffects(_ context.Context, opts repository.ListEffectsOpts) ([]models.Effect, error) {
	effects := []models.Effect{}
	err := r.s.do(func(d *dataset) error {
		for _, e := range d.effects {
			if opts.OrderID != nil && e.OrderID != *opts.OrderID {
				continue
			}
			if len(opts.Statuses) > 0 && !slices.Contains(opts.Statuses, e.Status) {
				continue
			}
			if opts.UpdatedBefore != nil && !e.UpdatedAt.Before(*opts.UpdatedBefore) {
				continue
			}
			effects = append(effects, e)
		}
		return nil
	})

	slices.SortStableFunc(effects, func(a, b models.Effect) int {
		return cmp.Compare(a.UpdatedAt.UnixNano(), b.UpdatedAt.UnixNano())
	})
	if opts.Limit > 0 && len(effects) > opts.Limit {
		effects = effects[:opts.Limit]
	}

	return effects, err
}
