package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type Queue interface {
	Enqueue(ctx context.Context, taskID string, priority int) error
	ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error)
	Ack(ctx context.Context, taskID string) error
	RequeueStale(ctx context.Context, olderThan time.Duration, maxPerLane int64) (int64, error)
}

const (
	PriorityLow    = 0
	PriorityNormal = 1
	PriorityHigh   = 2
)

type Lane struct {
	QueueKey      string
	ProcessingKey string
}

// Lanes derives the low/normal/high lanes from the base keys.
func Lanes(queueKey, processingKey string) (low, normal, high Lane) {
	mk := func(suffix string) Lane {
		return Lane{QueueKey: queueKey + ":" + suffix, ProcessingKey: processingKey + ":" + suffix}
	}
	return mk("low"), mk("normal"), mk("high")
}

// redisPriorityQueue implements a reliable queue with priorities using Redis lists.
// Claim: BRPOPLPUSH lane.queue -> lane.processing
// Ack:   LREM from the processing list recorded in processingMapKey
// The map value is "<processing key>|<claim unix seconds>", so the reaper only
// returns claims that outlived the visibility timeout.
type redisPriorityQueue struct {
	rdb              *redis.Client
	processingMapKey string
	now              func() time.Time

	low    Lane
	normal Lane
	high   Lane
}

func NewRedisPriorityQueue(rdb *redis.Client, processingMapKey string, low, normal, high Lane) Queue {
	return &redisPriorityQueue{
		rdb:              rdb,
		processingMapKey: processingMapKey,
		now:              time.Now,
		low:              low,
		normal:           normal,
		high:             high,
	}
}

func clampPriority(p int) int {
	if p < PriorityLow {
		return PriorityLow
	}
	if p > PriorityHigh {
		return PriorityHigh
	}
	return p
}

func (q *redisPriorityQueue) laneByPriority(p int) Lane {
	switch clampPriority(p) {
	case PriorityHigh:
		return q.high
	case PriorityNormal:
		return q.normal
	default:
		return q.low
	}
}

func (q *redisPriorityQueue) lanes() []Lane {
	return []Lane{q.high, q.normal, q.low}
}

func (q *redisPriorityQueue) Enqueue(ctx context.Context, taskID string, priority int) error {
	ln := q.laneByPriority(priority)
	return q.rdb.LPush(ctx, ln.QueueKey, taskID).Err()
}

// ClaimBlocking tries high->normal->low with small blocking slots,
// so it is "mostly blocking" but still respects priority.
func (q *redisPriorityQueue) ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error) {
	forever := timeout <= 0
	deadline := time.Now().Add(timeout)

	slot := 1 * time.Second
	if !forever && timeout < slot {
		slot = timeout
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !forever && time.Now().After(deadline) {
			return "", redis.Nil
		}

		for _, ln := range q.lanes() {
			wait := slot
			if !forever {
				remain := time.Until(deadline)
				if remain <= 0 {
					return "", redis.Nil
				}
				if remain < wait {
					wait = remain
				}
			}

			id, err := q.rdb.BRPopLPush(ctx, ln.QueueKey, ln.ProcessingKey, wait).Result()
			if err == nil {
				if hErr := q.rdb.HSet(ctx, q.processingMapKey, id, q.claimValue(ln)).Err(); hErr != nil {
					// can't safely ack later
					return "", hErr
				}
				return id, nil
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return "", err
		}
	}
}

func (q *redisPriorityQueue) Ack(ctx context.Context, taskID string) error {
	raw, err := q.rdb.HGet(ctx, q.processingMapKey, taskID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// mapping is missing, remove from every processing list
			for _, ln := range q.lanes() {
				_ = q.rdb.LRem(ctx, ln.ProcessingKey, 1, taskID).Err()
			}
			return nil
		}
		return err
	}

	processingKey, _ := parseClaim(raw)
	if err := q.rdb.LRem(ctx, processingKey, 1, taskID).Err(); err != nil {
		return err
	}
	_ = q.rdb.HDel(ctx, q.processingMapKey, taskID).Err()
	return nil
}

// RequeueStale moves claims older than olderThan from processing back to the
// head of their lane. Entries without a claim record get one stamped now and
// are considered on a later pass.
func (q *redisPriorityQueue) RequeueStale(ctx context.Context, olderThan time.Duration, maxPerLane int64) (int64, error) {
	var moved int64
	now := q.now()

	for _, ln := range q.lanes() {
		ids, err := q.rdb.LRange(ctx, ln.ProcessingKey, 0, -1).Result()
		if err != nil {
			return moved, err
		}

		var laneMoved int64
		for _, id := range ids {
			if laneMoved >= maxPerLane {
				break
			}

			raw, err := q.rdb.HGet(ctx, q.processingMapKey, id).Result()
			if errors.Is(err, redis.Nil) {
				_ = q.rdb.HSetNX(ctx, q.processingMapKey, id, q.claimValue(ln)).Err()
				continue
			}
			if err != nil {
				return moved, err
			}

			_, claimedAt := parseClaim(raw)
			if now.Sub(claimedAt) < olderThan {
				continue
			}

			n, err := q.rdb.LRem(ctx, ln.ProcessingKey, 1, id).Result()
			if err != nil {
				return moved, err
			}
			if n == 0 {
				// acked meanwhile
				continue
			}

			_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.RPush(ctx, ln.QueueKey, id)
				pipe.HDel(ctx, q.processingMapKey, id)
				return nil
			})
			if err != nil {
				return moved, err
			}
			laneMoved++
			moved++
		}
	}

	return moved, nil
}

func (q *redisPriorityQueue) claimValue(ln Lane) string {
	return ln.ProcessingKey + "|" + strconv.FormatInt(q.now().Unix(), 10)
}

// parseClaim tolerates bare processing keys written by older workers; those
// count as claimed at the epoch.
func parseClaim(raw string) (string, time.Time) {
	key, ts, ok := strings.Cut(raw, "|")
	if !ok {
		return raw, time.Unix(0, 0)
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return key, time.Unix(0, 0)
	}
	return key, time.Unix(sec, 0)
}
