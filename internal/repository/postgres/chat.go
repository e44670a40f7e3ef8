package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/courier/internal/apperrors"
	"github.com/nkiryanov/courier/internal/models"
)

type ChatRepo struct {
	DB DBTX
}

const createChannel = `-- name: CreateChannel
INSERT INTO chat_channels (order_id, customer_ref, driver_ref, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (order_id) DO NOTHING
RETURNING order_id, customer_ref, driver_ref, created_at
`

func (r *ChatRepo) CreateChannel(ctx context.Context, ch models.Channel) (models.Channel, bool, error) {
	rows, _ := r.DB.Query(ctx, createChannel, ch.OrderID, ch.CustomerRef, ch.DriverRef, ch.CreatedAt)
	channel, err := pgx.CollectOneRow(rows, rowToChannel)

	switch {
	case err == nil:
		return channel, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		channel, err = r.GetChannel(ctx, ch.OrderID)
		return channel, false, err
	default:
		return channel, false, fmt.Errorf("db error: %w", err)
	}
}

const getChannel = `-- name: GetChannel
SELECT order_id, customer_ref, driver_ref, created_at FROM chat_channels
WHERE order_id = $1
`

func (r *ChatRepo) GetChannel(ctx context.Context, orderID uuid.UUID) (models.Channel, error) {
	rows, _ := r.DB.Query(ctx, getChannel, orderID)
	channel, err := pgx.CollectOneRow(rows, rowToChannel)

	switch {
	case err == nil:
		return channel, nil
	case errors.Is(err, pgx.ErrNoRows):
		return channel, apperrors.ErrChannelNotFound
	default:
		return channel, fmt.Errorf("db error: %w", err)
	}
}

const messageColumns = `id, order_id, sender_ref, kind, text, dedup_key, created_at`

const createMessage = `-- name: CreateMessage
INSERT INTO chat_messages (order_id, sender_ref, kind, text, dedup_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT DO NOTHING
RETURNING ` + messageColumns

const getMessageByDedupKey = `-- name: GetMessageByDedupKey
SELECT ` + messageColumns + ` FROM chat_messages
WHERE order_id = $1 AND dedup_key = $2
`

func (r *ChatRepo) CreateMessage(ctx context.Context, m models.Message) (models.Message, bool, error) {
	rows, _ := r.DB.Query(ctx, createMessage, m.OrderID, m.SenderRef, m.Kind, m.Text, m.DedupKey, m.CreatedAt)
	message, err := pgx.CollectOneRow(rows, rowToMessage)

	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return message, true, nil
	case errors.Is(err, pgx.ErrNoRows) && m.DedupKey != nil:
		rows, _ := r.DB.Query(ctx, getMessageByDedupKey, m.OrderID, *m.DedupKey)
		message, err = pgx.CollectOneRow(rows, rowToMessage)
		if err != nil {
			return message, false, fmt.Errorf("db error: %w", err)
		}
		return message, false, nil
	case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation:
		return message, false, apperrors.ErrChannelNotFound
	default:
		return message, false, fmt.Errorf("db error: %w", err)
	}
}

const listMessages = `-- name: ListMessages
SELECT ` + messageColumns + ` FROM chat_messages
WHERE order_id = $1
ORDER BY id
`

func (r *ChatRepo) ListMessages(ctx context.Context, orderID uuid.UUID) ([]models.Message, error) {
	rows, _ := r.DB.Query(ctx, listMessages, orderID)
	messages, err := pgx.CollectRows(rows, rowToMessage)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return messages, nil
}

func rowToChannel(row pgx.CollectableRow) (models.Channel, error) {
	var c models.Channel
	err := row.Scan(&c.OrderID, &c.CustomerRef, &c.DriverRef, &c.CreatedAt)
	return c, err
}

func rowToMessage(row pgx.CollectableRow) (models.Message, error) {
	var m models.Message
	err := row.Scan(&m.ID, &m.OrderID, &m.SenderRef, &m.Kind, &m.Text, &m.DedupKey, &m.CreatedAt)
	return m, err
}
