package effects

import (
	"context"
	"time"

	"github.com/nkiryanov/courier/internal/logger"
	"github.com/nkiryanov/courier/internal/models"
	"github.com/nkiryanov/courier/internal/repository"
)

type Producer struct {
	interval   time.Duration
	retryDelay time.Duration
	batchSize  int
	effectRepo repository.EffectRepo
	logger     logger.Logger
}

func (p *Producer) Produce(ctx context.Context, out chan<- models.Effect) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting effect producer", "interval", p.interval, "retry_delay", p.retryDelay, "batch_size", p.batchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Producer stopped by context")
				return

			case <-ticker.C:
				before := time.Now().Add(-p.retryDelay)
				effects, err := p.effectRepo.ListEffects(ctx, repository.ListEffectsOpts{
					Statuses:      []models.EffectStatus{models.EffectStatusPending, models.EffectStatusFailed},
					UpdatedBefore: &before,
					Limit:         p.batchSize,
				})
				if err != nil {
					p.logger.Error("Failed to list effects", "error", err)
					continue
				}
				if len(effects) > 0 {
					p.logger.Info("Retrying order effects", "count", len(effects))
				}

				for _, effect := range effects {
					select {
					case <-ctx.Done():
						p.logger.Debug("Producer stopped by context while sending effects")
						return
					case out <- effect:
					}
				}
			}
		}
	}()

	return idleStopped
}
