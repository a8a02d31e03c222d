package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"github.com/wa-ai-replybot-go/internal/config"
	"github.com/wa-ai-replybot-go/internal/models"
)

// ErrNotFound is returned by a backend that holds no record yet
var ErrNotFound = errors.New("stats record not found")

// Backend persists the whole statistics record
type Backend interface {
	Load(ctx context.Context) (*models.Stats, error)
	Save(ctx context.Context, stats *models.Stats) error
}

// NewBackend creates the backend selected by cfg.Type
func NewBackend(cfg *config.StorageConfig, logger *logrus.Logger) (Backend, error) {
	switch cfg.Type {
	case "file", "":
		return NewFileBackend(cfg.StatsFile), nil
	case "redis":
		backend, err := NewRedisBackend(&cfg.Redis)
		if err != nil {
			return nil, err
		}
		logger.WithField("addr", cfg.Redis.Addr).Info("Using redis stats backend")
		return backend, nil
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// FileBackend keeps the record in a JSON file, rewritten whole on every save
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (f *FileBackend) Load(ctx context.Context) (*models.Stats, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var stats models.Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	return &stats, nil
}

func (f *FileBackend) Save(ctx context.Context, stats *models.Stats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	return WriteAtomic(f.path, data)
}

// WriteAtomic replaces path through a temp file so readers never see a partial record
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// RedisBackend stores the record as JSON under a single key
type RedisBackend struct {
	client *redis.Client
	key    string
}

func NewRedisBackend(cfg *config.RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisBackend(client, cfg.Key), nil
}

func newRedisBackend(client *redis.Client, key string) *RedisBackend {
	if key == "" {
		key = "wa_bot:stats"
	}
	return &RedisBackend{client: client, key: key}
}

func (r *RedisBackend) Load(ctx context.Context) (*models.Stats, error) {
	data, err := r.client.Get(ctx, r.key).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var stats models.Stats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *RedisBackend) Save(ctx context.Context, stats *models.Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key, data, 0).Err()
}

// Close releases the redis connection pool
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

// MemoryBackend keeps the record in process, for tests and ephemeral runs
type MemoryBackend struct {
	store *cache.Cache
}

const memoryKey = "stats"

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{store: cache.New(cache.NoExpiration, cache.NoExpiration)}
}

func (m *MemoryBackend) Load(ctx context.Context) (*models.Stats, error) {
	val, found := m.store.Get(memoryKey)
	if !found {
		return nil, ErrNotFound
	}
	stats := val.(models.Stats)
	return &stats, nil
}

func (m *MemoryBackend) Save(ctx context.Context, stats *models.Stats) error {
	m.store.Set(memoryKey, *stats, cache.NoExpiration)
	return nil
}
