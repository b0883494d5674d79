package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewPostgresPoolRejectsBadURL(t *testing.T) {
	_, err := NewPostgresPool(context.Background(), "postgres://%zz")
	require.ErrorContains(t, err, "ParseConfig")
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "http://localhost")
	require.ErrorContains(t, err, "ParseURL")
}

func TestNewRedisClientPingFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := NewRedisClient(ctx, "redis://127.0.0.1:1/0?dial_timeout=50ms&max_retries=-1")
	require.ErrorContains(t, err, "redis ping failed")
}
