package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"image-worker-service/internal/entity"
)

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
    id             UUID PRIMARY KEY,
    kind           TEXT        NOT NULL,
    input_path     TEXT        NOT NULL,
    output_path    TEXT        NOT NULL,
    scale          INT         NOT NULL DEFAULT 0,
    enhance_before BOOLEAN     NOT NULL DEFAULT FALSE,
    priority       INT         NOT NULL DEFAULT 1,
    status         TEXT        NOT NULL,
    progress       INT         NOT NULL DEFAULT 0,
    result         JSONB,
    error          TEXT,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS tasks_updated_at_idx ON tasks (updated_at);
`

type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

func (r *TaskRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}

func (r *TaskRepository) Create(ctx context.Context, task *entity.Task) error {
	if task.Status == "" {
		task.Status = entity.StatusPending
	}

	const q = `
INSERT INTO tasks (id, kind, input_path, output_path, scale, enhance_before, priority, status, progress)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at, updated_at;
`
	return r.pool.QueryRow(ctx, q,
		task.ID,
		string(task.Kind),
		task.InputPath,
		task.OutputPath,
		task.Params.Scale,
		task.Params.EnhanceBefore,
		task.Priority,
		string(task.Status),
		task.Progress,
	).Scan(&task.CreatedAt, &task.UpdatedAt)
}

func (r *TaskRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Task, error) {
	const q = `
SELECT id, kind, input_path, output_path, scale, enhance_before, priority,
       status, progress, result, error, created_at, updated_at
FROM tasks
WHERE id = $1;
`

	var (
		task        entity.Task
		kindText    string
		statusText  string
		resultBytes []byte
	)

	if err := r.pool.QueryRow(ctx, q, id).Scan(
		&task.ID,
		&kindText,
		&task.InputPath,
		&task.OutputPath,
		&task.Params.Scale,
		&task.Params.EnhanceBefore,
		&task.Priority,
		&statusText,
		&task.Progress,
		&resultBytes, // NULL => nil
		&task.Error,  // NULL => nil
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, err
	}

	task.Kind = entity.Kind(kindText)
	task.Status = entity.Status(statusText)
	if resultBytes != nil {
		var res entity.Result
		if err := json.Unmarshal(resultBytes, &res); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		task.Result = &res
	}

	return &task, nil
}

func (r *TaskRepository) SetProgress(ctx context.Context, id uuid.UUID, percent int) error {
	const q = `UPDATE tasks SET status=$2, progress=$3, updated_at=now() WHERE id=$1;`
	return r.exec(ctx, q, id, string(entity.StatusProcessing), percent)
}

func (r *TaskRepository) SetSuccess(ctx context.Context, id uuid.UUID, result entity.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	const q = `UPDATE tasks SET status=$2, progress=100, result=$3, error=NULL, updated_at=now() WHERE id=$1;`
	return r.exec(ctx, q, id, string(entity.StatusSuccess), data)
}

func (r *TaskRepository) SetFailure(ctx context.Context, id uuid.UUID, message string) error {
	const q = `UPDATE tasks SET status=$2, error=$3, updated_at=now() WHERE id=$1;`
	return r.exec(ctx, q, id, string(entity.StatusFailure), message)
}

// PurgeExpired deletes terminal tasks not updated within retention.
func (r *TaskRepository) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	const q = `DELETE FROM tasks WHERE status IN ($1, $2) AND updated_at < $3;`

	tag, err := r.pool.Exec(ctx, q,
		string(entity.StatusSuccess),
		string(entity.StatusFailure),
		time.Now().Add(-retention),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *TaskRepository) exec(ctx context.Context, q string, args ...any) error {
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrNotFound
	}
	return nil
}
