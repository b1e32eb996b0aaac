package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"image-worker-service/internal/artifact"
	"image-worker-service/internal/entity"
)

// AllowedExtensions are the upload types the service accepts.
var AllowedExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

var ErrUnsupportedFile = errors.New("file type not allowed")

// TaskRepository is the result backend port (redisstore.TaskStore or
// postgresql.TaskRepository).
type TaskRepository interface {
	Create(ctx context.Context, task *entity.Task) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Task, error)
	SetFailure(ctx context.Context, id uuid.UUID, message string) error
}

// TaskQueue is the enqueue-only view of Queue.
type TaskQueue interface {
	Enqueue(ctx context.Context, taskID string, priority int) error
}

type TaskService struct {
	repo    TaskRepository
	queue   TaskQueue
	uploads *artifact.Dir
	results *artifact.Dir
	maxSize int64
}

func NewTaskService(repo TaskRepository, queue TaskQueue, uploads, results *artifact.Dir, maxSize int64) *TaskService {
	return &TaskService{repo: repo, queue: queue, uploads: uploads, results: results, maxSize: maxSize}
}

type SubmitRequest struct {
	Filename      string
	File          io.Reader
	Kind          entity.Kind
	Scale         int
	EnhanceBefore bool
	Priority      int
}

type SubmitResponse struct {
	TaskID         string      `json:"task_id"`
	Filename       string      `json:"filename"`
	OutputFilename string      `json:"output_filename"`
	TaskType       entity.Kind `json:"task_type"`
}

// StatusResponse mirrors the task state: result is nil while pending, the
// progress percent while processing, the output filename on success and the
// error message on failure.
type StatusResponse struct {
	Status entity.Status `json:"status"`
	Result any           `json:"result"`
}

// Submit stores the upload, records a PENDING task and enqueues it.
func (s *TaskService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if req.Filename == "" || req.File == nil {
		return nil, fmt.Errorf("no file provided: %w", entity.ErrInvalidParameter)
	}
	ext := strings.ToLower(filepath.Ext(req.Filename))
	if !slices.Contains(AllowedExtensions, ext) {
		return nil, fmt.Errorf("%w: allowed %s", ErrUnsupportedFile, strings.Join(AllowedExtensions, ", "))
	}

	if req.Kind == "" {
		req.Kind = entity.KindRemoveBackground
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("unknown task type %q: %w", req.Kind, entity.ErrInvalidParameter)
	}
	if req.Scale == 0 {
		req.Scale = entity.DefaultScale
	}
	if !entity.ValidScale(req.Scale) {
		return nil, fmt.Errorf("scale %d not in %v: %w", req.Scale, entity.AllowedScales, entity.ErrInvalidParameter)
	}

	priority := req.Priority
	if priority < PriorityLow || priority > PriorityHigh {
		priority = PriorityNormal
	}

	inputName := s.uploads.NewName(ext)
	if _, err := s.uploads.Save(inputName, req.File, s.maxSize); err != nil {
		return nil, err
	}
	inputPath, _ := s.uploads.Path(inputName)

	params := entity.Params{Scale: req.Scale}
	if req.Kind == entity.KindVectorize {
		params.EnhanceBefore = req.EnhanceBefore
	}

	outputName := s.results.NewName(req.Kind.OutputExt())
	outputPath, _ := s.results.Path(outputName)

	task := &entity.Task{
		Job: entity.Job{
			ID:         uuid.New(),
			Kind:       req.Kind,
			InputPath:  inputPath,
			OutputPath: outputPath,
			Params:     params,
		},
		Priority: priority,
		Status:   entity.StatusPending,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		_ = artifact.Remove(inputPath)
		return nil, err
	}
	if err := s.queue.Enqueue(ctx, task.ID.String(), priority); err != nil {
		// Nothing will ever claim the task: close the record instead of
		// leaving it PENDING until it expires.
		cleanupCtx := context.WithoutCancel(ctx)
		_ = artifact.Remove(inputPath)
		if ferr := s.repo.SetFailure(cleanupCtx, task.ID, "enqueue failed: "+err.Error()); ferr != nil {
			return nil, errors.Join(fmt.Errorf("enqueue: %w", err), fmt.Errorf("mark task failed: %w", ferr))
		}
		return nil, fmt.Errorf("enqueue: %w", err)
	}

	return &SubmitResponse{
		TaskID:         task.ID.String(),
		Filename:       inputName,
		OutputFilename: outputName,
		TaskType:       req.Kind,
	}, nil
}

func (s *TaskService) Status(ctx context.Context, id uuid.UUID) (*StatusResponse, error) {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := &StatusResponse{Status: task.Status}
	switch task.Status {
	case entity.StatusProcessing:
		resp.Result = task.Progress
	case entity.StatusSuccess:
		if task.Result != nil {
			resp.Result = task.Result.Filename
		}
	case entity.StatusFailure:
		if task.Error != nil {
			resp.Result = *task.Error
		}
	}
	return resp, nil
}

func (s *TaskService) GetTask(ctx context.Context, id uuid.UUID) (*entity.Task, error) {
	return s.repo.Get(ctx, id)
}
