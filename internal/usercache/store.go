// Package usercache provides the optional per-user provider-context cache
// (spec §5, §6: "Per-user context cache... process-global, mutex-guarded,
// opt-in", 24h TTL). Grounded on internal/cache/manager.go's Redis-backed
// manager, generalized into a small Store interface with both an in-memory
// default implementation and a Redis-backed alternate for multi-process
// deployments.
package usercache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flightscout/orchestrator/internal/cache"
)

// DefaultTTL is the 24-hour cache lifetime named in spec §6.
const DefaultTTL = 24 * time.Hour

// ErrMiss is returned by Get when userID has no cached context.
var ErrMiss = errors.New("usercache: miss")

// Store maps a user id to a provider-issued context id.
type Store interface {
	Get(ctx context.Context, userID string) (string, error)
	Set(ctx context.Context, userID, contextID string) error
}

// InMemoryStore is the process-local default: a mutex-guarded map with
// lazy expiry checked on read.
type InMemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
}

type entry struct {
	contextID string
	expiresAt time.Time
}

// NewInMemoryStore creates an InMemoryStore. ttl <= 0 uses DefaultTTL.
func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &InMemoryStore{ttl: ttl, entries: make(map[string]entry)}
}

// Get returns userID's cached context id, or ErrMiss if absent or expired.
func (s *InMemoryStore) Get(ctx context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[userID]
	if !ok {
		return "", ErrMiss
	}
	if time.Now().After(e.expiresAt) {
		delete(s.entries, userID)
		return "", ErrMiss
	}
	return e.contextID, nil
}

// Set records userID's context id with a fresh TTL.
func (s *InMemoryStore) Set(ctx context.Context, userID, contextID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userID] = entry{contextID: contextID, expiresAt: time.Now().Add(s.ttl)}
	return nil
}

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	EnableTLS bool
	TTL       time.Duration
	KeyPrefix string
}

// DefaultRedisConfig returns sane defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{Addr: "localhost:6379", TTL: DefaultTTL, KeyPrefix: "flightscout:usercache:"}
}

// RedisStore is the multi-process alternate. It is a thin wrapper over
// internal/cache.Manager, which owns the actual Redis connection pool,
// health checking, and (optional) TLS.
type RedisStore struct {
	manager *cache.Manager
	cfg     RedisConfig
	logger  *zap.Logger
}

// NewRedisStore creates a RedisStore, verifying connectivity eagerly.
func NewRedisStore(cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "flightscout:usercache:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	manager, err := cache.NewManager(cache.Config{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		DefaultTTL: cfg.TTL,
		EnableTLS:  cfg.EnableTLS,
		PoolSize:   10,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("usercache: connect to redis: %w", err)
	}
	return &RedisStore{manager: manager, cfg: cfg, logger: logger.With(zap.String("component", "usercache"))}, nil
}

func (s *RedisStore) key(userID string) string {
	return s.cfg.KeyPrefix + userID
}

// Get returns userID's cached context id, or ErrMiss if absent.
func (s *RedisStore) Get(ctx context.Context, userID string) (string, error) {
	val, err := s.manager.Get(ctx, s.key(userID))
	if cache.IsCacheMiss(err) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("usercache: redis get: %w", err)
	}
	return val, nil
}

// Set records userID's context id with the configured TTL.
func (s *RedisStore) Set(ctx context.Context, userID, contextID string) error {
	if err := s.manager.Set(ctx, s.key(userID), contextID, s.cfg.TTL); err != nil {
		return fmt.Errorf("usercache: redis set: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.manager.Close()
}

// Ping verifies connectivity to the backing Redis instance, for use as a
// health check.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.manager.Ping(ctx)
}
