package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"board_sync/internal/bootstrap"
)

func TestRedisOptions(t *testing.T) {
	opts, err := redisOptions("localhost:6379")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	opts, err = redisOptions("redis://:secret@cache:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)

	_, err = redisOptions("redis://cache:6380/notadb")
	assert.Error(t, err)
}

func TestCloseBeforeInit(t *testing.T) {
	cfg := &bootstrap.Config{}
	log := zaptest.NewLogger(t).Sugar()
	assert.NoError(t, NewAdapterRedis(cfg, log).Close(context.Background()))
	assert.NoError(t, NewAdapterMongo(cfg, log).Close(context.Background()))
}
