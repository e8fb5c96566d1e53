package data

import (
	"context"
	"testing"
	"time"

	"RateLane/internal/conf"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisConf(addr string) *conf.Data {
	return &conf.Data{
		Redis: &conf.Data_Redis{
			Addr:         addr,
			ReadTimeout:  200 * time.Millisecond,
			WriteTimeout: 200 * time.Millisecond,
		},
	}
}

func TestNewRedisClient_Success(t *testing.T) {
	mr := miniredis.RunT(t)

	client, cleanup, err := NewRedisClient(redisConf(mr.Addr()), log.DefaultLogger)
	require.NoError(t, err)
	require.NotNil(t, client)
	defer cleanup()

	assert.NoError(t, client.Ping(context.Background()).Err())

	opts := client.Options()
	assert.Equal(t, "tcp", opts.Network)
	assert.Equal(t, 200*time.Millisecond, opts.ReadTimeout)
	assert.Equal(t, 200*time.Millisecond, opts.WriteTimeout)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	// the service keeps running without the mirror
	client, cleanup, err := NewRedisClient(redisConf(addr), log.DefaultLogger)
	defer cleanup()

	assert.NoError(t, err)
	require.NotNil(t, client)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, client.Ping(ctx).Err())
}

func TestNewRedisClient_NotConfigured(t *testing.T) {
	tests := []struct {
		name string
		c    *conf.Data
	}{
		{"nil config", nil},
		{"nil redis section", &conf.Data{}},
		{"empty address", redisConf("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, cleanup, err := NewRedisClient(tt.c, log.DefaultLogger)
			defer cleanup()

			assert.NoError(t, err)
			assert.Nil(t, client)
		})
	}
}

func TestNewRedisClient_CleanupClosesClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, cleanup, err := NewRedisClient(redisConf(mr.Addr()), log.DefaultLogger)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	cleanup()
	assert.Error(t, client.Ping(ctx).Err())
}
