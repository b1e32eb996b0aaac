package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"image-worker-service/internal/service"
)

type Pool struct {
	queue      service.Queue
	processor  *Processor
	workers    int
	claimDelay time.Duration
	logger     *zap.Logger
}

func NewPool(queue service.Queue, processor *Processor, workers int, claimTimeout time.Duration, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if claimTimeout <= 0 {
		claimTimeout = 5 * time.Second
	}
	return &Pool{
		queue:      queue,
		processor:  processor,
		workers:    workers,
		claimDelay: claimTimeout,
		logger:     logger,
	}
}

// Run claims tasks until ctx is cancelled, then waits for in-flight tasks.
func (p *Pool) Run(ctx context.Context) {
	p.logger.Info("worker pool started", zap.Int("workers", p.workers))

	taskCh := make(chan string)
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			log := p.logger.With(zap.Int("worker", n))
			for taskID := range taskCh {
				err := p.processor.Process(ctx, taskID)
				if errors.Is(err, ErrRedeliver) {
					// Left in processing: the reaper requeues it once the
					// claim outlives the visibility timeout.
					log.Warn("task left for redelivery", zap.String("job_id", taskID), zap.Error(err))
					continue
				}
				if err != nil {
					log.Warn("process task", zap.String("job_id", taskID), zap.Error(err))
				}

				ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				if ackErr := p.queue.Ack(ackCtx, taskID); ackErr != nil {
					log.Error("ack task", zap.String("job_id", taskID), zap.Error(ackErr))
				}
				cancel()
			}
		}(i + 1)
	}

	defer func() {
		close(taskCh)
		wg.Wait()
		p.logger.Info("worker pool stopped")
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		taskID, err := p.queue.ClaimBlocking(ctx, p.claimDelay)
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				p.logger.Warn("claim task", zap.Error(err))
				time.Sleep(time.Second)
			}
			continue
		}
		select {
		case taskCh <- taskID:
		case <-ctx.Done():
			// claimed but not started: stays in processing for the reaper
			p.logger.Info("shutdown with claimed task", zap.String("job_id", taskID))
			return
		}
	}
}

// Reap periodically returns claims that outlived visibility to their lane.
func Reap(ctx context.Context, queue service.Queue, interval, visibility time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := queue.RequeueStale(ctx, visibility, 100)
			if err != nil {
				logger.Warn("requeue stale tasks", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("requeued stale tasks", zap.Int64("count", n))
			}
		}
	}
}
