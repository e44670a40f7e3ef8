package effects

import (
	"context"
	"sync"

	"github.com/nkiryanov/courier/internal/logger"
	"github.com/nkiryanov/courier/internal/models"
)

type Consumer struct {
	countWorkers int
	runner       effectRunner
	logger       logger.Logger
}

func (c *Consumer) Consume(ctx context.Context, in <-chan models.Effect) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for range c.countWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx, in)
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("Consumer stopped")
	}()

	return idleStopped
}

func (c *Consumer) worker(ctx context.Context, in <-chan models.Effect) {
	for {
		select {
		case <-ctx.Done():
			return

		case effect, ok := <-in:
			if !ok {
				c.logger.Debug("Consumer worker stopped, input channel closed")
				return
			}

			// Failure is recorded on the effect by the runner, the next sweep retries it
			if err := c.runner.Run(ctx, effect); err != nil {
				c.logger.Warn("Effect retry failed", "effect_id", effect.ID, "order_id", effect.OrderID, "effect", effect.Kind, "error", err)
			}
		}
	}
}
