package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/creditgate/creditgate/internal/config"
	"github.com/creditgate/creditgate/internal/core"
)

const (
	driverRedis        = "redis"
	defaultRedisPrefix = "creditgate:approval:"
	redisScanCount     = 100
)

// RedisStore keeps one JSON approval per key. SETNX gives first-writer-wins
// across every process sharing the server.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to the configured server and pings it.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStore(client, cfg.Prefix), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Driver() string { return driverRedis }

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return ErrNotInitialized
	}
	return s.client.Ping(ctx).Err()
}

// Get returns the approval stored for identity, or nil when there is none.
func (s *RedisStore) Get(ctx context.Context, identity string) (*core.ApprovalRecord, error) {
	if s == nil || s.client == nil {
		return nil, ErrNotInitialized
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.New("identity is required")
	}

	payload, err := s.client.Get(ctx, s.key(identity)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch approval: %w", err)
	}
	return decodeRecord(payload)
}

// Put stores record with SETNX and returns whichever record holds the key.
func (s *RedisStore) Put(ctx context.Context, identity string, record core.ApprovalRecord) (*core.ApprovalRecord, error) {
	if s == nil || s.client == nil {
		return nil, ErrNotInitialized
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.New("identity is required")
	}
	if strings.TrimSpace(record.ID) == "" {
		return nil, errors.New("approval id is required")
	}

	record.CreatedAt = record.CreatedAt.UTC()
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode approval: %w", err)
	}

	if err := s.client.SetNX(ctx, s.key(identity), payload, 0).Err(); err != nil {
		return nil, fmt.Errorf("store approval: %w", err)
	}

	stored, err := s.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("store approval: key for %s missing after insert", identity)
	}
	return stored, nil
}

func (s *RedisStore) ListApprovals(ctx context.Context, q ApprovalQuery) ([]core.ApprovalEntry, error) {
	if s == nil || s.client == nil {
		return nil, ErrNotInitialized
	}

	keys, err := s.matchingKeys(ctx, q)
	if err != nil {
		return nil, err
	}

	entries := []core.ApprovalEntry{}
	for _, key := range keys {
		payload, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("list approvals: %w", err)
		}
		record, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		entries = append(entries, core.ApprovalEntry{
			Identity: strings.TrimPrefix(key, s.prefix),
			Record:   *record,
		})
	}
	return entries, nil
}

func (s *RedisStore) CountApprovals(ctx context.Context, q ApprovalQuery) (int, error) {
	if s == nil || s.client == nil {
		return 0, ErrNotInitialized
	}
	keys, err := s.matchingKeys(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// DeleteApprovals removes matching approvals so the identities can apply again.
func (s *RedisStore) DeleteApprovals(ctx context.Context, q ApprovalQuery) (int64, error) {
	if s == nil || s.client == nil {
		return 0, ErrNotInitialized
	}
	keys, err := s.matchingKeys(ctx, q)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("delete approvals: %w", err)
	}
	return deleted, nil
}

// matchingKeys returns sorted keys selected by q.
func (s *RedisStore) matchingKeys(ctx context.Context, q ApprovalQuery) ([]string, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if !q.All {
		if identity := strings.TrimSpace(q.Identity); identity != "" {
			key := s.key(identity)
			exists, err := s.client.Exists(ctx, key).Result()
			if err != nil {
				return nil, fmt.Errorf("lookup approval: %w", err)
			}
			if exists == 0 {
				return []string{}, nil
			}
			return []string{key}, nil
		}
	}

	pattern := escapeGlob(s.prefix) + "*"
	if !q.All {
		pattern = escapeGlob(s.prefix+strings.TrimSpace(q.Prefix)) + "*"
	}

	keys := []string{}
	iter := s.client.Scan(ctx, 0, pattern, redisScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan approvals: %w", err)
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *RedisStore) key(identity string) string {
	return s.prefix + identity
}

func decodeRecord(payload []byte) (*core.ApprovalRecord, error) {
	var record core.ApprovalRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decode approval: %w", err)
	}
	record.CreatedAt = record.CreatedAt.UTC()
	return &record, nil
}

func escapeGlob(value string) string {
	return strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`).Replace(value)
}
