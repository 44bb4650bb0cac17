package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestKey(t *testing.T) {
	require.Empty(t, Key("  ", "ngo"))

	a := Key("abc", "ngo", "generations")
	require.Len(t, a, 64)
	require.Equal(t, a, Key(" abc ", "ngo", "generations"))
	require.NotEqual(t, a, Key("abc", "advocacy", "generations"))
	require.NotEqual(t, a, Key("abc", "ngo", "edits"))
	require.NotEqual(t, Key("abc", "ng", "o"), Key("abc", "n", "go"))
}

func TestIdempotencyCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewIdempotencyCache(client, time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()
	key := Key("req-1", "ngo")

	_, ok := c.Get(ctx, key)
	require.False(t, ok)

	c.Set(ctx, key, []byte(`{"id":"1"}`))
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	require.JSONEq(t, `{"id":"1"}`, string(got))
	require.Equal(t, time.Minute, mr.TTL("idem:"+key))

	c.Set(ctx, "", []byte("x"))
	_, ok = c.Get(ctx, "")
	require.False(t, ok)

	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, key)
	require.False(t, ok)
}

func TestNilCache(t *testing.T) {
	var c *IdempotencyCache
	c.Set(context.Background(), "k", []byte("v"))
	_, ok := c.Get(context.Background(), "k")
	require.False(t, ok)

	c = NewIdempotencyCache(nil, 0, nil)
	_, ok = c.Get(context.Background(), "k")
	require.False(t, ok)
}
