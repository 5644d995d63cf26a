package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/voicetally/internal/config"
	"github.com/goodtune/voicetally/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix      = "voicetally"
	usersIndexKey  = keyPrefix + ":users"
	reportStateKey = keyPrefix + ":report:state"
)

// Store implements the storage.Store interface using Redis
type Store struct {
	client      *redis.Client
	usageStore  *usageStore
	reportStore *reportStateStore
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	// Parse timeouts
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Determine address
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	// Ping to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{
		client:      client,
		usageStore:  &usageStore{client: client, upsert: redis.NewScript(upsertUserScript)},
		reportStore: &reportStateStore{client: client},
	}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks that Redis is reachable
func (s *Store) Ping(ctx context.Context) error {
	return storage.Unavailable(s.client.Ping(ctx).Err())
}

// Usage returns the UsageStore implementation
func (s *Store) Usage() storage.UsageStore {
	return s.usageStore
}

// Reports returns the ReportStateStore implementation
func (s *Store) Reports() storage.ReportStateStore {
	return s.reportStore
}

func userKey(userID string) string {
	return fmt.Sprintf("%s:user:%s", keyPrefix, userID)
}
