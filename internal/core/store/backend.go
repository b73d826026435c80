// Package store persists approval records. libsql is the default backend;
// redis and in-memory stores implement the same Backend.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/creditgate/creditgate/internal/config"
	"github.com/creditgate/creditgate/internal/core"
)

// Backend is an approval store with admin queries.
type Backend interface {
	Get(ctx context.Context, identity string) (*core.ApprovalRecord, error)
	Put(ctx context.Context, identity string, record core.ApprovalRecord) (*core.ApprovalRecord, error)

	ListApprovals(ctx context.Context, q ApprovalQuery) ([]core.ApprovalEntry, error)
	CountApprovals(ctx context.Context, q ApprovalQuery) (int, error)
	DeleteApprovals(ctx context.Context, q ApprovalQuery) (int64, error)

	Ping(ctx context.Context) error
	Driver() string
	Close() error
}

var (
	_ Backend = (*Store)(nil)
	_ Backend = (*RedisStore)(nil)
	_ Backend = (*MemoryStore)(nil)
)

// OpenBackend opens the backend named by cfg.Driver and prepares it for use.
func OpenBackend(ctx context.Context, cfg config.StoreConfig) (Backend, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", driverLibsql:
		st, err := Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil
	case driverRedis:
		return OpenRedis(ctx, cfg.Redis)
	case driverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}
