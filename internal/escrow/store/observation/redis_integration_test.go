//go:build integration

package observation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paylink/internal/escrow/store/observation"
	id "paylink/pkg/domain"
	"paylink/pkg/testutil/containers"
)

func TestRedisMarkObserved(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.NewRedisContainer(t)
	t.Cleanup(func() {
		_ = rc.Client.Close()
		_ = rc.Container.Terminate(context.Background())
	})

	store := observation.NewRedis(rc.Client)
	ctx := context.Background()
	escrowID := id.NewEscrowID()

	first, err := store.MarkObserved(ctx, escrowID, "buyer", "tx-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	replay, err := store.MarkObserved(ctx, escrowID, "buyer", "tx-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, replay)

	// A different role or tx ref is a distinct observation.
	other, err := store.MarkObserved(ctx, escrowID, "seller", "tx-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, other)

	// Entries expire with their TTL and can then be observed again.
	short, err := store.MarkObserved(ctx, escrowID, "buyer", "tx-ttl", 100*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, short)
	time.Sleep(200 * time.Millisecond)
	again, err := store.MarkObserved(ctx, escrowID, "buyer", "tx-ttl", time.Minute)
	require.NoError(t, err)
	assert.True(t, again)
}
