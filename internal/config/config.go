package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"image-worker-service/internal/model"
)

type Redis struct {
	Addr             string `toml:"addr"`
	Password         string `toml:"password"`
	DB               int    `toml:"db"`
	QueueKey         string `toml:"queue_key"`
	ProcessingKey    string `toml:"processing_key"`
	ProcessingMapKey string `toml:"processing_map_key"`
	TaskKeyPrefix    string `toml:"task_key_prefix"`
}

type Postgres struct {
	DSN string `toml:"dsn"`
}

type Storage struct {
	UploadDir   string `toml:"upload_dir"`
	ResultDir   string `toml:"result_dir"`
	WorkDir     string `toml:"work_dir"`
	MaxFileSize int64  `toml:"max_file_size"`
}

type Worker struct {
	Concurrency         int  `toml:"concurrency"`
	ClaimTimeoutSeconds int  `toml:"claim_timeout_seconds"`
	VisibilitySeconds   int  `toml:"visibility_seconds"`
	ReapIntervalSeconds int  `toml:"reap_interval_seconds"`
	Preload             bool `toml:"preload"`
}

type HTTP struct {
	Addr        string   `toml:"addr"`
	CORSOrigins []string `toml:"cors_origins"`
}

type Segmentation struct {
	Command               string `toml:"command"`
	Model                 string `toml:"model"`
	StartupTimeoutSeconds int    `toml:"startup_timeout_seconds"`
}

type SuperResolution struct {
	Command     string `toml:"command"`
	Model       string `toml:"model"`
	NativeScale int    `toml:"native_scale"`
	GPU         int    `toml:"gpu"`
}

type Vectorize struct {
	Command string `toml:"command"`
	Profile string `toml:"profile"`
}

type Models struct {
	LockDir         string          `toml:"lock_dir"`
	GPUProbe        []string        `toml:"gpu_probe"`
	Segmentation    Segmentation    `toml:"segmentation"`
	SuperResolution SuperResolution `toml:"super_resolution"`
	Vectorize       Vectorize       `toml:"vectorize"`
}

type Kafka struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the full service configuration shared by cmd/worker, cmd/api and imgctl.
type Config struct {
	ResultBackend    string   `toml:"result_backend"`
	ResultTTLSeconds int      `toml:"result_ttl_seconds"`
	Redis            Redis    `toml:"redis"`
	Postgres         Postgres `toml:"postgres"`
	Storage          Storage  `toml:"storage"`
	Worker           Worker   `toml:"worker"`
	HTTP             HTTP     `toml:"http"`
	Models           Models   `toml:"models"`
	Kafka            Kafka    `toml:"kafka"`
	Log              Log      `toml:"log"`
}

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

func Default() Config {
	return Config{
		ResultBackend:    BackendRedis,
		ResultTTLSeconds: 24 * 60 * 60,
		Redis: Redis{
			Addr:          "localhost:6379",
			QueueKey:      "tasks:queue",
			ProcessingKey: "tasks:processing",
			TaskKeyPrefix: "task:",
		},
		Storage: Storage{
			UploadDir:   "/data/uploads",
			ResultDir:   "/data/results",
			WorkDir:     filepath.Join(os.TempDir(), "image-worker"),
			MaxFileSize: 100 * 1024 * 1024,
		},
		Worker: Worker{
			Concurrency:         1,
			ClaimTimeoutSeconds: 5,
			VisibilitySeconds:   30 * 60,
			ReapIntervalSeconds: 30,
			Preload:             true,
		},
		HTTP: HTTP{
			Addr:        ":8000",
			CORSOrigins: []string{"*"},
		},
		Models: Models{
			GPUProbe: []string{"nvidia-smi", "-L"},
			Segmentation: Segmentation{
				Command:               "rembg",
				Model:                 "birefnet-general",
				StartupTimeoutSeconds: 120,
			},
			SuperResolution: SuperResolution{
				Command: "realesrgan-ncnn-vulkan",
				Model:   "realesrgan-x4plus",
			},
			Vectorize: Vectorize{
				Command: "vtracer",
				Profile: model.ProfileBalanced.Name,
			},
		},
		Kafka: Kafka{Topic: "image-tasks"},
		Log:   Log{Level: "info", Format: "auto"},
	}
}

// Load builds the configuration: defaults, then the TOML file at path (if
// any), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.ResultBackend = envOr("RESULT_BACKEND", cfg.ResultBackend)
	cfg.ResultTTLSeconds = envIntOr("RESULT_TTL_SECONDS", cfg.ResultTTLSeconds)

	cfg.Redis.Addr = envOr("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envOr("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envIntOr("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.QueueKey = envOr("REDIS_QUEUE_KEY", cfg.Redis.QueueKey)
	cfg.Redis.ProcessingKey = envOr("REDIS_PROCESSING_KEY", cfg.Redis.ProcessingKey)
	cfg.Redis.ProcessingMapKey = envOr("REDIS_PROCESSING_MAP_KEY", cfg.Redis.ProcessingMapKey)

	cfg.Postgres.DSN = envOr("POSTGRES_DSN", cfg.Postgres.DSN)

	cfg.Storage.UploadDir = envOr("UPLOAD_DIR", cfg.Storage.UploadDir)
	cfg.Storage.ResultDir = envOr("RESULT_DIR", cfg.Storage.ResultDir)
	cfg.Storage.WorkDir = envOr("WORK_DIR", cfg.Storage.WorkDir)
	cfg.Storage.MaxFileSize = int64(envIntOr("MAX_FILE_SIZE", int(cfg.Storage.MaxFileSize)))

	cfg.Worker.Concurrency = envIntOr("WORKERS", cfg.Worker.Concurrency)
	cfg.Worker.VisibilitySeconds = envIntOr("VISIBILITY_SECONDS", cfg.Worker.VisibilitySeconds)
	if v := os.Getenv("PRELOAD_MODELS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Worker.Preload = b
		}
	}

	cfg.HTTP.Addr = envOr("HTTP_ADDR", cfg.HTTP.Addr)

	cfg.Models.LockDir = envOr("MODEL_LOCK_DIR", cfg.Models.LockDir)
	cfg.Models.Segmentation.Model = envOr("REMBG_MODEL", cfg.Models.Segmentation.Model)
	cfg.Models.SuperResolution.Model = envOr("REALESRGAN_MODEL", cfg.Models.SuperResolution.Model)
	cfg.Models.Vectorize.Profile = envOr("VECTORIZE_PROFILE", cfg.Models.Vectorize.Profile)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	cfg.Kafka.Topic = envOr("KAFKA_TOPIC", cfg.Kafka.Topic)

	cfg.Log.Level = envOr("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envOr("LOG_FORMAT", cfg.Log.Format)
}

func (c *Config) normalize() {
	c.ResultBackend = strings.ToLower(strings.TrimSpace(c.ResultBackend))
	if c.Redis.ProcessingMapKey == "" {
		c.Redis.ProcessingMapKey = c.Redis.ProcessingKey + ":map"
	}
	if c.Models.LockDir == "" {
		c.Models.LockDir = filepath.Join(c.Storage.WorkDir, "locks")
	}
}

func (c Config) Validate() error {
	var errs []error
	switch c.ResultBackend {
	case BackendRedis:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for the postgres result backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("result_backend %q: expected redis or postgres", c.ResultBackend))
	}
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}
	if c.Storage.UploadDir == "" || c.Storage.ResultDir == "" || c.Storage.WorkDir == "" {
		errs = append(errs, errors.New("storage upload_dir, result_dir and work_dir are required"))
	}
	if c.Storage.MaxFileSize <= 0 {
		errs = append(errs, errors.New("storage.max_file_size must be positive"))
	}
	if c.Worker.Concurrency <= 0 {
		errs = append(errs, errors.New("worker.concurrency must be positive"))
	}
	if w := c.Worker; w.ClaimTimeoutSeconds <= 0 || w.ReapIntervalSeconds <= 0 || w.VisibilitySeconds <= 0 {
		errs = append(errs, errors.New("worker claim_timeout_seconds, reap_interval_seconds and visibility_seconds must be positive"))
	} else if w.VisibilitySeconds < 2*w.ReapIntervalSeconds {
		// A claim younger than visibility belongs to a running job.
		errs = append(errs, fmt.Errorf("worker.visibility_seconds %d must be at least twice reap_interval_seconds %d",
			w.VisibilitySeconds, w.ReapIntervalSeconds))
	}
	if c.ResultTTLSeconds <= 0 {
		errs = append(errs, errors.New("result_ttl_seconds must be positive"))
	}
	if _, err := c.VectorProfile(); err != nil {
		errs = append(errs, err)
	}
	if n := c.Models.SuperResolution.NativeScale; n != 0 && n != 2 && n != 4 && n != 8 {
		errs = append(errs, fmt.Errorf("models.super_resolution.native_scale %d: expected 2, 4 or 8", n))
	}
	return errors.Join(errs...)
}

// VectorProfile resolves the configured preset.
func (c Config) VectorProfile() (model.VectorProfile, error) {
	p, err := model.ProfileByName(c.Models.Vectorize.Profile)
	if err != nil {
		return model.VectorProfile{}, fmt.Errorf("models.vectorize.profile: %w", err)
	}
	return p, nil
}

func envOr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
