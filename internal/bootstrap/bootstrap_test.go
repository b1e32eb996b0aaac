package bootstrap_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"image-worker-service/internal/bootstrap"
	"image-worker-service/internal/config"
	"image-worker-service/internal/events"
	"image-worker-service/internal/repository/redisstore"
)

func TestRedactDSN(t *testing.T) {
	assert.Equal(t,
		"postgres://app:****@db:5432/images?sslmode=disable",
		bootstrap.RedactDSN("postgres://app:s3cret@db:5432/images?sslmode=disable"),
	)
	assert.Equal(t, "postgres://db/images", bootstrap.RedactDSN("postgres://db/images"))
}

func TestOpenStore_DefaultsToRedis(t *testing.T) {
	cfg := config.Default()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = rdb.Close() })

	store, pg, closeStore, err := bootstrap.OpenStore(context.Background(), cfg, rdb)
	require.NoError(t, err)
	defer closeStore()

	assert.IsType(t, &redisstore.TaskStore{}, store)
	assert.Nil(t, pg)
}

func TestPublisher_NopWithoutBrokers(t *testing.T) {
	pub := bootstrap.Publisher(config.Kafka{Topic: "image-tasks"}, zaptest.NewLogger(t))
	assert.Equal(t, events.Nop(), pub)
}

func TestDirsAndRunner(t *testing.T) {
	cfg := config.Default()
	root := t.TempDir()
	cfg.Storage.UploadDir = filepath.Join(root, "uploads")
	cfg.Storage.ResultDir = filepath.Join(root, "results")
	cfg.Storage.WorkDir = filepath.Join(root, "work")
	cfg.Models.LockDir = filepath.Join(root, "work", "locks")

	uploads, results, err := bootstrap.Dirs(cfg.Storage)
	require.NoError(t, err)
	assert.DirExists(t, uploads.Root())
	assert.DirExists(t, results.Root())

	runner, cache, err := bootstrap.Runner(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NotNil(t, runner)
	assert.Len(t, cache.Names(), 2)

	cfg.Models.Vectorize.Profile = "ultra"
	_, _, err = bootstrap.Runner(cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}
