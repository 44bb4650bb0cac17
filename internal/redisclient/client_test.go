package redisclient

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/config"
)

func TestNewAcceptsURLAndAddr(t *testing.T) {
	mr := miniredis.RunT(t)

	for _, raw := range []string{"redis://" + mr.Addr(), mr.Addr()} {
		client := New(config.RedisConfig{URL: raw, DB: 2, PoolSize: 3})
		require.Equal(t, 2, client.Options().DB)
		require.Equal(t, 3, client.Options().PoolSize)
		require.NoError(t, Ping(context.Background(), client))
		require.NoError(t, client.Close())
	}
}

func TestPingFailsWhenDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := New(config.RedisConfig{URL: mr.Addr()})
	defer client.Close()
	mr.Close()

	require.Error(t, Ping(context.Background(), client))
}

func TestIsMaintNotifications(t *testing.T) {
	ctx := context.Background()
	require.True(t, isMaintNotifications(redis.NewStatusCmd(ctx, "client", "MAINT_NOTIFICATIONS", "on")))
	require.False(t, isMaintNotifications(redis.NewStatusCmd(ctx, "client", "setname", "studio")))
	require.False(t, isMaintNotifications(redis.NewStatusCmd(ctx, "ping")))
}
