package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"image-worker-service/internal/entity"
	"image-worker-service/internal/events"
	"image-worker-service/internal/progress"
)

// TaskStore is the result backend as seen by the worker.
type TaskStore interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.Task, error)
	SetProgress(ctx context.Context, id uuid.UUID, percent int) error
	SetSuccess(ctx context.Context, id uuid.UUID, result entity.Result) error
	SetFailure(ctx context.Context, id uuid.UUID, message string) error
}

type JobRunner interface {
	Run(ctx context.Context, job entity.Job, sink progress.Sink) (*entity.Result, error)
}

type Processor struct {
	store     TaskStore
	runner    JobRunner
	publisher events.Publisher
	logger    *zap.Logger
}

func NewProcessor(store TaskStore, runner JobRunner, publisher events.Publisher, logger *zap.Logger) *Processor {
	if publisher == nil {
		publisher = events.Nop()
	}
	return &Processor{store: store, runner: runner, publisher: publisher, logger: logger}
}

// ErrRedeliver marks a Process error after which the delivery must stay
// unacknowledged: the task is not terminal in the result backend and the
// queue has to hand it out again.
var ErrRedeliver = errors.New("task needs redelivery")

// Process runs one delivery of taskID. A failed job is recorded as FAILURE and
// its error is returned. Errors wrapping ErrRedeliver mean the result backend
// could not be read or written; every other outcome is final for the delivery.
func (p *Processor) Process(ctx context.Context, taskID string) error {
	start := time.Now()

	id, err := uuid.Parse(taskID)
	if err != nil {
		p.logger.Error("invalid task id", zap.String("job_id", taskID), zap.Error(err))
		return err
	}

	// Mid-job cancellation is unsupported: once claimed, a delivery is loaded
	// and run to completion even when the pool is shutting down.
	jobCtx := context.WithoutCancel(ctx)

	task, err := p.store.Get(jobCtx, id)
	if err != nil {
		p.logger.Error("load task", zap.String("job_id", taskID), zap.Error(err))
		if errors.Is(err, entity.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: load: %w", ErrRedeliver, err)
	}
	if task.Status.Terminal() {
		p.logger.Info("task already finished, skipping",
			zap.String("job_id", taskID),
			zap.String("status", string(task.Status)),
		)
		return nil
	}

	sink := progress.NewMonotonic(p.progressSink(task), task.Progress)
	sink.Update(jobCtx, task.Progress)

	p.logger.Info("task started",
		zap.String("job_id", taskID),
		zap.String("type", string(task.EffectiveKind())),
		zap.String("status", string(entity.StatusProcessing)),
	)

	result, runErr := p.run(jobCtx, task.Job, sink)
	if runErr != nil {
		msg := entity.FailureMessage(runErr)
		p.logger.Error("task failed",
			zap.String("job_id", taskID),
			zap.String("type", string(task.EffectiveKind())),
			zap.String("status", string(entity.StatusFailure)),
			zap.String("input", task.InputPath),
			zap.String("output", task.OutputPath),
			zap.Int("scale", task.Params.Scale),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Error(runErr),
		)
		if err := p.store.SetFailure(jobCtx, id, msg); err != nil {
			return errors.Join(runErr, fmt.Errorf("%w: store failure: %w", ErrRedeliver, err))
		}
		p.publish(jobCtx, events.Event{
			TaskID: taskID, Kind: task.Kind, Status: entity.StatusFailure,
			Progress: sink.Last(), Error: msg,
		})
		return runErr
	}

	if err := p.store.SetSuccess(jobCtx, id, *result); err != nil {
		p.logger.Error("store success", zap.String("job_id", taskID), zap.Error(err))
		return fmt.Errorf("%w: store success: %w", ErrRedeliver, err)
	}
	p.publish(jobCtx, events.Event{
		TaskID: taskID, Kind: task.Kind, Status: entity.StatusSuccess,
		Progress: 100, Filename: result.Filename,
	})

	p.logger.Info("task done",
		zap.String("job_id", taskID),
		zap.String("type", string(task.EffectiveKind())),
		zap.String("status", string(entity.StatusSuccess)),
		zap.String("filename", result.Filename),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}

// run is the single catch boundary around the job, panics included.
func (p *Processor) run(ctx context.Context, job entity.Job, sink progress.Sink) (res *entity.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic recovered",
				zap.String("job_id", job.ID.String()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			res, err = nil, fmt.Errorf("internal error: %v", r)
		}
	}()
	return p.runner.Run(ctx, job, sink)
}

func (p *Processor) progressSink(task *entity.Task) progress.Sink {
	taskID := task.ID.String()
	return progress.SinkFunc(func(ctx context.Context, percent int) {
		if err := p.store.SetProgress(ctx, task.ID, percent); err != nil {
			p.logger.Warn("store progress",
				zap.String("job_id", taskID),
				zap.Int("progress", percent),
				zap.Error(err),
			)
		}
		p.publish(ctx, events.Event{
			TaskID: taskID, Kind: task.Kind, Status: entity.StatusProcessing, Progress: percent,
		})
	})
}

func (p *Processor) publish(ctx context.Context, ev events.Event) {
	if err := p.publisher.Publish(ctx, ev); err != nil {
		p.logger.Warn("publish event",
			zap.String("job_id", ev.TaskID),
			zap.String("status", string(ev.Status)),
			zap.Error(err),
		)
	}
}
