package effects

import (
	"context"
	"time"

	"github.com/nkiryanov/courier/internal/logger"
	"github.com/nkiryanov/courier/internal/models"
	"github.com/nkiryanov/courier/internal/repository"
)

const (
	DefaultWorkers       = 4                // Number of workers to run effects
	DefaultSweepInterval = 10 * time.Second // Interval for listing effects to retry
	DefaultRetryDelay    = 30 * time.Second // Effect untouched that long is retried
	DefaultBatchSize     = 100
)

type effectRunner interface {
	Run(ctx context.Context, effect models.Effect) error
}

type SweeperConfig struct {
	Workers    int
	Interval   time.Duration
	RetryDelay time.Duration
	BatchSize  int
}

// Sweeper retries pending and failed effects until they are done.
// Fresh effects are left to the dispatch right after commit.
type Sweeper struct {
	consumer *Consumer
	producer *Producer
	logger   logger.Logger
}

func NewSweeper(storage repository.Storage, runner effectRunner, cfg SweeperConfig, l logger.Logger) *Sweeper {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Sweeper{
		consumer: &Consumer{
			countWorkers: cfg.Workers,
			runner:       runner,
			logger:       l,
		},
		producer: &Producer{
			interval:   cfg.Interval,
			retryDelay: cfg.RetryDelay,
			batchSize:  cfg.BatchSize,
			effectRepo: storage.Effect(),
			logger:     l,
		},
		logger: l,
	}
}

// Sweep runs until the context is done.
// Returned channel is closed when producer and every worker stopped
func (s *Sweeper) Sweep(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	effectChan := make(chan models.Effect)

	producerStopped := s.producer.Produce(ctx, effectChan)
	consumerStopped := s.consumer.Consume(ctx, effectChan)

	go func() {
		defer close(idleStopped)
		defer close(effectChan)
		<-producerStopped
		<-consumerStopped
		s.logger.Debug("Effect sweeper stopped")
	}()

	return idleStopped
}
