package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/courier/internal/apperrors"
	"github.com/nkiryanov/courier/internal/models"
	"github.com/nkiryanov/courier/internal/repository"
)

type EffectRepo struct {
	DB DBTX
}

const effectColumns = `id, order_id, kind, status, attempts, last_error, created_at, updated_at`

// Create effect or return the existing one for the order and kind
const createEffect = `-- name: CreateEffect
WITH insert_effect AS (
	INSERT INTO order_effects (id, order_id, kind, status, attempts, last_error, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (order_id, kind) DO NOTHING
	RETURNING ` + effectColumns + `
)
SELECT ` + effectColumns + ` FROM insert_effect
UNION ALL
SELECT ` + effectColumns + ` FROM order_effects WHERE order_id = $2 AND kind = $3
LIMIT 1
`

func (r *EffectRepo) CreateEffects(ctx context.Context, effects []models.Effect) ([]models.Effect, error) {
	stored := make([]models.Effect, 0, len(effects))

	for _, e := range effects {
		rows, _ := r.DB.Query(ctx, createEffect,
			e.ID, e.OrderID, e.Kind, e.Status, e.Attempts, e.LastError, e.CreatedAt, e.UpdatedAt,
		)
		effect, err := pgx.CollectOneRow(rows, rowToEffect)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		stored = append(stored, effect)
	}

	return stored, nil
}

const markEffectDone = `-- name: MarkEffectDone
UPDATE order_effects
SET status = 'done', attempts = attempts + 1, last_error = '', updated_at = $2
WHERE id = $1
RETURNING ` + effectColumns

func (r *EffectRepo) MarkDone(ctx context.Context, id uuid.UUID, updatedAt time.Time) (models.Effect, error) {
	return r.update(ctx, markEffectDone, id, updatedAt)
}

const markEffectFailed = `-- name: MarkEffectFailed
UPDATE order_effects
SET status = 'failed', attempts = attempts + 1, last_error = $3, updated_at = $2
WHERE id = $1
RETURNING ` + effectColumns

func (r *EffectRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string, updatedAt time.Time) (models.Effect, error) {
	return r.update(ctx, markEffectFailed, id, updatedAt, reason)
}

func (r *EffectRepo) update(ctx context.Context, query string, args ...any) (models.Effect, error) {
	rows, _ := r.DB.Query(ctx, query, args...)
	effect, err := pgx.CollectOneRow(rows, rowToEffect)

	switch {
	case err == nil:
		return effect, nil
	case errors.Is(err, pgx.ErrNoRows):
		return effect, apperrors.ErrEffectNotFound
	default:
		return effect, fmt.Errorf("db error: %w", err)
	}
}

const listEffects = `-- name: ListEffects
SELECT ` + effectColumns + ` FROM order_effects
WHERE ($1::uuid IS NULL OR order_id = $1)
	AND (cardinality($2::varchar[]) = 0 OR status = ANY($2::varchar[]))
	AND ($3::timestamptz IS NULL OR updated_at < $3)
ORDER BY updated_at, id
LIMIT NULLIF($4::integer, 0)
`

func (r *EffectRepo) ListEffects(ctx context.Context, opts repository.ListEffectsOpts) ([]models.Effect, error) {
	statuses := make([]string, 0, len(opts.Statuses))
	for _, s := range opts.Statuses {
		statuses = append(statuses, string(s))
	}

	rows, _ := r.DB.Query(ctx, listEffects, opts.OrderID, statuses, opts.UpdatedBefore, opts.Limit)
	effects, err := pgx.CollectRows(rows, rowToEffect)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return effects, nil
}

func rowToEffect(row pgx.CollectableRow) (models.Effect, error) {
	var e models.Effect
	err := row.Scan(&e.ID, &e.OrderID, &e.Kind, &e.Status, &e.Attempts, &e.LastError, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}
