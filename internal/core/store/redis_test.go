package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creditgate/creditgate/internal/config"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	st := NewRedisStore(client, "")
	t.Cleanup(func() { _ = st.Close() })
	return server, st
}

func TestRedisStore(t *testing.T) {
	_, st := newTestRedis(t)
	require.Equal(t, "redis", st.Driver())
	exerciseBackend(t, st)
}

func TestRedisStoreKeyLayout(t *testing.T) {
	server, st := newTestRedis(t)

	_, err := st.Put(context.Background(), "10.0.0.1", testRecord("abc"))
	require.NoError(t, err)

	payload, err := server.Get("creditgate:approval:10.0.0.1")
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "abc",
		"status": "APPROVED",
		"approved_amount": "1250.75",
		"created_at": "2025-03-01T12:30:15.123456789Z"
	}`, payload)
}

func TestRedisStoreIgnoresForeignKeys(t *testing.T) {
	server, st := newTestRedis(t)
	require.NoError(t, server.Set("unrelated", "value"))

	_, err := st.Put(context.Background(), "10.0.0.1", testRecord("abc"))
	require.NoError(t, err)

	count, err := st.CountApprovals(context.Background(), ApprovalQuery{All: true})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRedisStoreFaults(t *testing.T) {
	server, st := newTestRedis(t)
	server.Close()

	_, err := st.Get(context.Background(), "10.0.0.1")
	require.Error(t, err)
	require.Error(t, st.Ping(context.Background()))
}

func TestOpenRedis(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	backend, err := OpenBackend(context.Background(), config.StoreConfig{
		Driver: "redis",
		Redis:  config.RedisConfig{Addr: server.Addr(), Prefix: "test:"},
	})
	require.NoError(t, err)
	defer func() { _ = backend.Close() }()

	_, err = backend.Put(context.Background(), "10.0.0.1", testRecord("abc"))
	require.NoError(t, err)
	assert.True(t, server.Exists("test:10.0.0.1"))

	_, err = OpenRedis(context.Background(), config.RedisConfig{})
	require.Error(t, err)
}
