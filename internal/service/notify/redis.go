package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/courier/internal/logger"
	"github.com/nkiryanov/courier/internal/models"
)

// ChangesChannel is the redis pub/sub channel shared by all instances
const ChangesChannel = "courier:changes"

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// RedisPublisher sends changes to every instance subscribed with RedisBridge
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client, channel: ChangesChannel}
}

func (p *RedisPublisher) Publish(ctx context.Context, change models.Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("can't encode change. Err: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish error: %w", err)
	}

	return nil
}

// RedisBridge republishes changes received from redis into local hub.
// Changes this instance sent itself come back too, the hub version guard drops them.
type RedisBridge struct {
	client  redis.UniversalClient
	channel string
	hub     Publisher
	logger  logger.Logger
}

func NewRedisBridge(client redis.UniversalClient, hub Publisher, l logger.Logger) *RedisBridge {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &RedisBridge{
		client:  client,
		channel: ChangesChannel,
		hub:     hub,
		logger:  l,
	}
}

// Start subscribes to the channel and returns once the subscription is confirmed.
// Returned channel is closed when the bridge stops after context cancellation.
func (b *RedisBridge) Start(ctx context.Context) (<-chan struct{}, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe error: %w", err)
	}

	idleStopped := make(chan struct{})
	messages := pubsub.Channel()

	go func() {
		defer close(idleStopped)
		defer pubsub.Close() // nolint:errcheck

		for {
			select {
			case <-ctx.Done():
				b.logger.Debug("Redis bridge stopped by context")
				return

			case msg, ok := <-messages:
				if !ok {
					b.logger.Warn("Redis bridge stopped, subscription closed")
					return
				}

				var change models.Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					b.logger.Error("Failed to decode change", "error", err)
					continue
				}
				if err := b.hub.Publish(ctx, change); err != nil {
					b.logger.Error("Failed to publish change to hub", "error", err, "entity", change.Key())
				}
			}
		}
	}()

	return idleStopped, nil
}
