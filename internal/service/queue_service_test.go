package service_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"image-worker-service/internal/service"
)

func newRedisQueue(t *testing.T) (service.Queue, *redis.Client) {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("redis: %v", err)
	}

	base := "test:" + uuid.NewString()
	low, normal, high := service.Lanes(base+":queue", base+":processing")
	mapKey := base + ":processing:map"
	t.Cleanup(func() {
		ctx := context.Background()
		for _, ln := range []service.Lane{low, normal, high} {
			_ = rdb.Del(ctx, ln.QueueKey, ln.ProcessingKey).Err()
		}
		_ = rdb.Del(ctx, mapKey).Err()
	})
	return service.NewRedisPriorityQueue(rdb, mapKey, low, normal, high), rdb
}

func TestRedisQueue_HighPriorityClaimedFirst(t *testing.T) {
	q, _ := newRedisQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "low-1", service.PriorityLow); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, "high-1", service.PriorityHigh); err != nil {
		t.Fatal(err)
	}

	id, err := q.ClaimBlocking(ctx, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if id != "high-1" {
		t.Fatalf("expected high-1 first, got %s", id)
	}
	if err := q.Ack(ctx, id); err != nil {
		t.Fatal(err)
	}
}

func TestRedisQueue_RequeueStaleRespectsVisibility(t *testing.T) {
	q, _ := newRedisQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "task-1", service.PriorityNormal); err != nil {
		t.Fatal(err)
	}
	id, err := q.ClaimBlocking(ctx, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	n, err := q.RequeueStale(ctx, time.Hour, 100)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("fresh claim must stay in processing, moved %d", n)
	}

	n, err = q.RequeueStale(ctx, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 requeued, got %d", n)
	}

	again, err := q.ClaimBlocking(ctx, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if again != id {
		t.Fatalf("expected %s redelivered, got %s", id, again)
	}
}
