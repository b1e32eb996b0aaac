package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-worker-service/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, config.BackendRedis, cfg.ResultBackend)
	assert.Equal(t, "tasks:processing:map", cfg.Redis.ProcessingMapKey)
	assert.EqualValues(t, 100*1024*1024, cfg.Storage.MaxFileSize)
	assert.Equal(t, filepath.Join(cfg.Storage.WorkDir, "locks"), cfg.Models.LockDir)

	p, err := cfg.VectorProfile()
	require.NoError(t, err)
	assert.Equal(t, "balanced", p.Name)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
result_backend = "postgres"

[postgres]
dsn = "postgres://app:secret@db:5432/images"

[storage]
upload_dir = "/srv/uploads"
result_dir = "/srv/results"

[worker]
concurrency = 2

[models.vectorize]
profile = "fast"

[kafka]
brokers = ["k1:9092"]
`), 0o644))

	t.Setenv("WORKERS", "6")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, config.BackendPostgres, cfg.ResultBackend)
	assert.Equal(t, "/srv/uploads", cfg.Storage.UploadDir)
	assert.Equal(t, 6, cfg.Worker.Concurrency)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "fast", cfg.Models.Vectorize.Profile)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("VECTORIZE_PROFILE", "ultra")
	_, err := config.Load("")
	assert.ErrorContains(t, err, "vectorize.profile")

	t.Setenv("VECTORIZE_PROFILE", "fast")
	t.Setenv("RESULT_BACKEND", "postgres")
	_, err = config.Load("")
	assert.ErrorContains(t, err, "postgres.dsn")
}

func TestLoad_RejectsWorkerTimings(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"zero reap interval", "reap_interval_seconds = 0", "reap_interval_seconds"},
		{"zero visibility", "visibility_seconds = 0", "visibility_seconds"},
		{"zero claim timeout", "claim_timeout_seconds = 0", "claim_timeout_seconds"},
		{"negative visibility", "visibility_seconds = -5", "visibility_seconds"},
		{"visibility below reap interval", "reap_interval_seconds = 60\nvisibility_seconds = 90", "at least twice"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "worker.toml")
			require.NoError(t, os.WriteFile(path, []byte("[worker]\n"+tc.body+"\n"), 0o644))

			_, err := config.Load(path)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
