// Package pipeline chains stage executors for compound job kinds.
package pipeline

import (
	"context"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"image-worker-service/internal/artifact"
	"image-worker-service/internal/entity"
	"image-worker-service/internal/progress"
	"image-worker-service/internal/stage"
)

// Progress bands of the enhance-then-vectorize pipeline.
const (
	enhanceBandEnd   = 50
	vectorizeBandEnd = 100
)

// Composer runs Enhance into a transient artifact, then Vectorize from it.
type Composer struct {
	enhance   stage.Executor
	vectorize stage.Executor
	workDir   string
	logger    *zap.Logger
}

func NewComposer(enhance, vectorize stage.Executor, workDir string, logger *zap.Logger) *Composer {
	return &Composer{enhance: enhance, vectorize: vectorize, workDir: workDir, logger: logger}
}

// TransientPath is the deterministic intermediate for a job, so a redelivered
// job overwrites rather than accumulates.
func (c *Composer) TransientPath(jobID uuid.UUID) string {
	return filepath.Join(c.workDir, jobID.String()+".enhanced.png")
}

// EnhanceThenVectorize removes the transient artifact on every exit path.
func (c *Composer) EnhanceThenVectorize(ctx context.Context, job entity.Job, sink progress.Sink) error {
	transient := c.TransientPath(job.ID)
	defer func() {
		if err := artifact.Remove(transient); err != nil {
			c.logger.Warn("transient artifact not removed",
				zap.String("job_id", job.ID.String()),
				zap.String("path", transient),
				zap.Error(err),
			)
		}
	}()

	err := c.enhance.Run(ctx, job.InputPath, transient, job.Params, progress.Band(sink, 0, enhanceBandEnd))
	if err != nil {
		return err
	}
	c.logger.Debug("intermediate ready",
		zap.String("job_id", job.ID.String()),
		zap.String("path", transient),
	)

	return c.vectorize.Run(ctx, transient, job.OutputPath, job.Params, progress.Band(sink, enhanceBandEnd, vectorizeBandEnd))
}
