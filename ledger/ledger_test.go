package ledger

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: server.Addr(),
	})

	cleanup := func() {
		_ = client.Close()
		server.Close()
	}

	return client, cleanup
}

func TestMarkProcessedIsIdempotent(t *testing.T) {
	client, cleanup := newTestRedis(t)
	defer cleanup()

	store := NewStore(client)
	ctx := context.Background()

	done, err := store.AlreadyProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, done)

	snap := Snapshot{
		SubjectID:   "alice@example.com",
		CalendarID:  "primary",
		Summary:     "OOO - ALICE",
		StartMarker: "2025-03-10",
		EndMarker:   "2025-03-13",
	}
	require.NoError(t, store.MarkProcessed(ctx, "evt-1", snap))

	done, err = store.AlreadyProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, done)

	// A retried delivery marking the same id must not raise.
	require.NoError(t, store.MarkProcessed(ctx, "evt-1", snap))

	done, err = store.AlreadyProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestRecordsAreIndependentPerEvent(t *testing.T) {
	client, cleanup := newTestRedis(t)
	defer cleanup()

	store := NewStore(client)
	ctx := context.Background()

	require.NoError(t, store.MarkProcessed(ctx, "evt-1", Snapshot{SubjectID: "a@example.com"}))

	done, err := store.AlreadyProcessed(ctx, "evt-2")
	require.NoError(t, err)
	assert.False(t, done)
}
