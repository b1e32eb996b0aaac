// Package redisstore keeps task records as Redis hashes with a retention TTL.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"image-worker-service/internal/entity"
)

const (
	fieldKind          = "kind"
	fieldInputPath     = "input_path"
	fieldOutputPath    = "output_path"
	fieldScale         = "scale"
	fieldEnhanceBefore = "enhance_before"
	fieldPriority      = "priority"
	fieldStatus        = "status"
	fieldProgress      = "progress"
	fieldResult        = "result"
	fieldError         = "error"
	fieldCreatedAt     = "created_at"
	fieldUpdatedAt     = "updated_at"
)

type TaskStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewTaskStore(rdb *redis.Client, prefix string, ttl time.Duration) *TaskStore {
	return &TaskStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *TaskStore) key(id uuid.UUID) string {
	return s.prefix + id.String()
}

func (s *TaskStore) Create(ctx context.Context, task *entity.Task) error {
	now := time.Now().UTC()
	task.CreatedAt, task.UpdatedAt = now, now
	if task.Status == "" {
		task.Status = entity.StatusPending
	}

	fields := map[string]any{
		fieldKind:          string(task.Kind),
		fieldInputPath:     task.InputPath,
		fieldOutputPath:    task.OutputPath,
		fieldScale:         task.Params.Scale,
		fieldEnhanceBefore: strconv.FormatBool(task.Params.EnhanceBefore),
		fieldPriority:      task.Priority,
		fieldStatus:        string(task.Status),
		fieldProgress:      task.Progress,
		fieldCreatedAt:     now.Format(time.RFC3339Nano),
		fieldUpdatedAt:     now.Format(time.RFC3339Nano),
	}
	return s.write(ctx, task.ID, fields)
}

func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*entity.Task, error) {
	m, err := s.rdb.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, entity.ErrNotFound
	}
	return decode(id, m)
}

func (s *TaskStore) SetProgress(ctx context.Context, id uuid.UUID, percent int) error {
	return s.update(ctx, id, map[string]any{
		fieldStatus:   string(entity.StatusProcessing),
		fieldProgress: percent,
	})
}

func (s *TaskStore) SetSuccess(ctx context.Context, id uuid.UUID, result entity.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.update(ctx, id, map[string]any{
		fieldStatus:   string(entity.StatusSuccess),
		fieldProgress: 100,
		fieldResult:   string(data),
		fieldError:    "",
	})
}

func (s *TaskStore) SetFailure(ctx context.Context, id uuid.UUID, message string) error {
	return s.update(ctx, id, map[string]any{
		fieldStatus: string(entity.StatusFailure),
		fieldError:  message,
	})
}

// update refuses to recreate a record that expired or never existed.
func (s *TaskStore) update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	n, err := s.rdb.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return entity.ErrNotFound
	}
	fields[fieldUpdatedAt] = time.Now().UTC().Format(time.RFC3339Nano)
	return s.write(ctx, id, fields)
}

func (s *TaskStore) write(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	key := s.key(id)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	return err
}

func decode(id uuid.UUID, m map[string]string) (*entity.Task, error) {
	t := &entity.Task{
		Job: entity.Job{
			ID:         id,
			Kind:       entity.Kind(m[fieldKind]),
			InputPath:  m[fieldInputPath],
			OutputPath: m[fieldOutputPath],
		},
		Status: entity.Status(m[fieldStatus]),
	}

	var err error
	if t.Params.Scale, err = atoi(m, fieldScale); err != nil {
		return nil, err
	}
	if t.Priority, err = atoi(m, fieldPriority); err != nil {
		return nil, err
	}
	if t.Progress, err = atoi(m, fieldProgress); err != nil {
		return nil, err
	}
	t.Params.EnhanceBefore, _ = strconv.ParseBool(m[fieldEnhanceBefore])

	if raw := m[fieldResult]; raw != "" {
		var r entity.Result
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		t.Result = &r
	}
	if msg := m[fieldError]; msg != "" {
		t.Error = &msg
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, m[fieldCreatedAt])
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, m[fieldUpdatedAt])
	return t, nil
}

func atoi(m map[string]string, field string) (int, error) {
	v, ok := m[field]
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", field, err)
	}
	return n, nil
}
