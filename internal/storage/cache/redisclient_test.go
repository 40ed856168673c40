package cache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-webpush-service/internal/storage/cache"
)

func TestNewRedisClient_FailsFastWhenUnreachable(t *testing.T) {
	// Port 1 is reserved and nothing listens there.
	client, err := cache.NewRedisClient("127.0.0.1:1", "", 0)

	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "redis ping failed")
}
