package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestAllowWithinLimit(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		q, err := client.Allow(ctx, "auth:1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, q.Allowed)
		assert.Equal(t, 2-i, q.Remaining)
	}

	q, err := client.Allow(ctx, "auth:1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, q.Allowed)
	assert.Equal(t, 0, q.Remaining)
	assert.Greater(t, q.RetryAfter, time.Duration(0))
}

func TestAllowWindowResets(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	_, err := client.Allow(ctx, "upload:ip", 1, time.Minute)
	require.NoError(t, err)
	q, err := client.Allow(ctx, "upload:ip", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, q.Allowed)

	mr.FastForward(time.Minute + time.Second)

	q, err = client.Allow(ctx, "upload:ip", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, q.Allowed)
}

func TestAllowKeysAreIndependent(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	_, err := client.Allow(ctx, "api:a", 1, time.Minute)
	require.NoError(t, err)

	q, err := client.Allow(ctx, "api:b", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, q.Allowed)
}

func TestAllowFailsWhenRedisDown(t *testing.T) {
	client, mr := newTestClient(t)
	mr.Close()

	_, err := client.Allow(context.Background(), "api:a", 1, time.Minute)
	assert.Error(t, err)
}
