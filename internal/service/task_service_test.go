package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"image-worker-service/internal/artifact"
	"image-worker-service/internal/entity"
	"image-worker-service/internal/service"
)

type fakeRepo struct {
	tasks     map[uuid.UUID]*entity.Task
	createErr error
}

func (r *fakeRepo) Create(ctx context.Context, task *entity.Task) error {
	if r.createErr != nil {
		return r.createErr
	}
	if r.tasks == nil {
		r.tasks = map[uuid.UUID]*entity.Task{}
	}
	r.tasks[task.ID] = task
	return nil
}

func (r *fakeRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Task, error) {
	t, ok := r.tasks[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return t, nil
}

func (r *fakeRepo) SetFailure(ctx context.Context, id uuid.UUID, message string) error {
	t, ok := r.tasks[id]
	if !ok {
		return entity.ErrNotFound
	}
	t.Status, t.Error = entity.StatusFailure, &message
	return nil
}

type fakeQueue struct {
	enqueuedIDs        []string
	enqueuedPriorities []int
	enqueueErr         error
}

func (q *fakeQueue) Enqueue(ctx context.Context, taskID string, priority int) error {
	q.enqueuedIDs = append(q.enqueuedIDs, taskID)
	q.enqueuedPriorities = append(q.enqueuedPriorities, priority)
	return q.enqueueErr
}

// the rest of Queue is unused here, but fakeQueue must satisfy it
func (q *fakeQueue) ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error) {
	return "", errors.New("not implemented")
}
func (q *fakeQueue) Ack(ctx context.Context, taskID string) error { return nil }
func (q *fakeQueue) RequeueStale(ctx context.Context, olderThan time.Duration, max int64) (int64, error) {
	return 0, nil
}

var _ service.Queue = (*fakeQueue)(nil)

func newService(t *testing.T, repo *fakeRepo, queue *fakeQueue, maxSize int64) (*service.TaskService, *artifact.Dir, *artifact.Dir) {
	t.Helper()
	uploads, err := artifact.NewDir(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatal(err)
	}
	results, err := artifact.NewDir(filepath.Join(t.TempDir(), "results"))
	if err != nil {
		t.Fatal(err)
	}
	return service.NewTaskService(repo, queue, uploads, results, maxSize), uploads, results
}

func TestTaskService_Submit_StoresAndEnqueues(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{}
	queue := &fakeQueue{}
	svc, uploads, results := newService(t, repo, queue, 1024)

	resp, err := svc.Submit(ctx, service.SubmitRequest{
		Filename: "Photo.JPG",
		File:     strings.NewReader("jpeg-bytes"),
		Kind:     entity.KindEnhance,
		Priority: 2,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if !strings.HasSuffix(resp.Filename, ".jpg") {
		t.Fatalf("expected lowercased .jpg upload name, got %s", resp.Filename)
	}
	if !strings.HasSuffix(resp.OutputFilename, ".png") {
		t.Fatalf("expected .png output name, got %s", resp.OutputFilename)
	}
	if resp.TaskType != entity.KindEnhance {
		t.Fatalf("expected task_type enhance, got %s", resp.TaskType)
	}

	id := uuid.MustParse(resp.TaskID)
	task := repo.tasks[id]
	if task == nil {
		t.Fatalf("task %s not stored", id)
	}
	if task.Status != entity.StatusPending {
		t.Fatalf("expected PENDING, got %s", task.Status)
	}
	if task.Params.Scale != entity.DefaultScale {
		t.Fatalf("expected default scale %d, got %d", entity.DefaultScale, task.Params.Scale)
	}
	if task.InputPath != filepath.Join(uploads.Root(), resp.Filename) {
		t.Fatalf("unexpected input path %s", task.InputPath)
	}
	if task.OutputPath != filepath.Join(results.Root(), resp.OutputFilename) {
		t.Fatalf("unexpected output path %s", task.OutputPath)
	}
	data, err := os.ReadFile(task.InputPath)
	if err != nil || string(data) != "jpeg-bytes" {
		t.Fatalf("upload not persisted: %v %q", err, data)
	}

	if len(queue.enqueuedIDs) != 1 || queue.enqueuedIDs[0] != resp.TaskID {
		t.Fatalf("expected enqueue id=%s, got %#v", resp.TaskID, queue.enqueuedIDs)
	}
	if queue.enqueuedPriorities[0] != 2 {
		t.Fatalf("expected enqueue priority=2, got %#v", queue.enqueuedPriorities)
	}
}

func TestTaskService_Submit_VectorizeOutputsSVG(t *testing.T) {
	repo := &fakeRepo{}
	svc, _, _ := newService(t, repo, &fakeQueue{}, 0)

	resp, err := svc.Submit(context.Background(), service.SubmitRequest{
		Filename:      "logo.png",
		File:          strings.NewReader("png"),
		Kind:          entity.KindVectorize,
		Scale:         2,
		EnhanceBefore: true,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !strings.HasSuffix(resp.OutputFilename, ".svg") {
		t.Fatalf("expected .svg output, got %s", resp.OutputFilename)
	}
	task := repo.tasks[uuid.MustParse(resp.TaskID)]
	if task.EffectiveKind() != entity.KindVectorizeEnhance {
		t.Fatalf("expected vectorize_enhance, got %s", task.EffectiveKind())
	}
}

func TestTaskService_Submit_PriorityClampedToNormal(t *testing.T) {
	queue := &fakeQueue{}
	svc, _, _ := newService(t, &fakeRepo{}, queue, 0)

	_, err := svc.Submit(context.Background(), service.SubmitRequest{
		Filename: "a.png",
		File:     strings.NewReader("x"),
		Priority: 999,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(queue.enqueuedPriorities) != 1 || queue.enqueuedPriorities[0] != service.PriorityNormal {
		t.Fatalf("expected enqueue priority=1 (clamped), got %#v", queue.enqueuedPriorities)
	}
}

func TestTaskService_Submit_Rejects(t *testing.T) {
	cases := []struct {
		name string
		req  service.SubmitRequest
		want error
	}{
		{"extension", service.SubmitRequest{Filename: "a.gif", File: strings.NewReader("x")}, service.ErrUnsupportedFile},
		{"kind", service.SubmitRequest{Filename: "a.png", File: strings.NewReader("x"), Kind: "sharpen"}, entity.ErrInvalidParameter},
		{"scale", service.SubmitRequest{Filename: "a.png", File: strings.NewReader("x"), Kind: entity.KindEnhance, Scale: 3}, entity.ErrInvalidParameter},
		{"size", service.SubmitRequest{Filename: "a.png", File: strings.NewReader(strings.Repeat("x", 20))}, artifact.ErrTooLarge},
		{"no file", service.SubmitRequest{Filename: ""}, entity.ErrInvalidParameter},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			queue := &fakeQueue{}
			svc, uploads, _ := newService(t, &fakeRepo{}, queue, 10)

			_, err := svc.Submit(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(queue.enqueuedIDs) != 0 {
				t.Fatalf("nothing must be enqueued, got %#v", queue.enqueuedIDs)
			}
			entries, _ := os.ReadDir(uploads.Root())
			if len(entries) != 0 {
				t.Fatalf("no upload must remain, got %d entries", len(entries))
			}
		})
	}
}

func TestTaskService_Submit_EnqueueFailureClosesTask(t *testing.T) {
	repo := &fakeRepo{}
	queue := &fakeQueue{enqueueErr: errors.New("dial tcp 127.0.0.1:6379: connection refused")}
	svc, uploads, _ := newService(t, repo, queue, 1<<20)

	_, err := svc.Submit(context.Background(), service.SubmitRequest{
		Filename: "a.png",
		File:     strings.NewReader("png"),
	})
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected enqueue error, got %v", err)
	}

	if len(repo.tasks) != 1 {
		t.Fatalf("expected one task record, got %d", len(repo.tasks))
	}
	for _, task := range repo.tasks {
		if task.Status != entity.StatusFailure || task.Error == nil || !strings.Contains(*task.Error, "enqueue failed") {
			t.Fatalf("expected FAILURE with enqueue error, got %+v", task)
		}
	}
	entries, _ := os.ReadDir(uploads.Root())
	if len(entries) != 0 {
		t.Fatalf("no upload must remain, got %d entries", len(entries))
	}
}

func TestTaskService_Status(t *testing.T) {
	msg := "enhance failed: out of memory"
	ids := map[entity.Status]uuid.UUID{}
	repo := &fakeRepo{tasks: map[uuid.UUID]*entity.Task{}}
	for _, st := range []entity.Status{entity.StatusPending, entity.StatusProcessing, entity.StatusSuccess, entity.StatusFailure} {
		id := uuid.New()
		ids[st] = id
		task := &entity.Task{Job: entity.Job{ID: id}, Status: st}
		switch st {
		case entity.StatusProcessing:
			task.Progress = 45
		case entity.StatusSuccess:
			task.Result = &entity.Result{Status: st, Filename: "out.png"}
		case entity.StatusFailure:
			task.Error = &msg
		}
		repo.tasks[id] = task
	}
	svc, _, _ := newService(t, repo, &fakeQueue{}, 0)

	want := map[entity.Status]any{
		entity.StatusPending:    nil,
		entity.StatusProcessing: 45,
		entity.StatusSuccess:    "out.png",
		entity.StatusFailure:    msg,
	}
	for st, id := range ids {
		got, err := svc.Status(context.Background(), id)
		if err != nil {
			t.Fatalf("%s: %v", st, err)
		}
		if got.Status != st || got.Result != want[st] {
			t.Fatalf("%s: got %+v", st, got)
		}
	}

	if _, err := svc.Status(context.Background(), uuid.New()); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
