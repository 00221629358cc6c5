package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/clubkit/pkg/audit"
	"github.com/dmitrymomot/clubkit/pkg/logger"
)

func TestLogger(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("fills actor from context and stores event", func(t *testing.T) {
		t.Parallel()
		store := audit.NewMemoryStorage()
		l := audit.NewLogger(store,
			audit.WithClock(func() time.Time { return fixed }),
			audit.WithRequestIDExtractor(func(context.Context) (string, bool) { return "req-9", true }),
		)

		ctx := logger.WithActorID(context.Background(), "user-1")
		require.NoError(t, l.Log(ctx, "biz-1", "subscription.paused",
			audit.WithMetadata("subscription_id", "sub_1"),
			audit.WithFields(map[string]any{"reason": "vacation"}),
		))

		events, err := store.Query(context.Background(), audit.Filter{BusinessID: "biz-1"})
		require.NoError(t, err)
		require.Len(t, events, 1)

		e := events[0]
		assert.Equal(t, "user-1", e.ActorUserID)
		assert.Equal(t, "subscription.paused", e.Type)
		assert.Equal(t, fixed, e.Timestamp)
		assert.Equal(t, "req-9", e.RequestID)
		assert.Equal(t, "sub_1", e.Metadata["subscription_id"])
		assert.Equal(t, "vacation", e.Metadata["reason"])
	})

	t.Run("explicit actor wins", func(t *testing.T) {
		t.Parallel()
		store := audit.NewMemoryStorage()
		l := audit.NewLogger(store)

		ctx := logger.WithActorID(context.Background(), "user-1")
		require.NoError(t, l.Log(ctx, "", "admin.sync", audit.WithActor("system:cron")))

		events, err := store.Query(context.Background(), audit.Filter{Type: "admin.sync"})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "system:cron", events[0].ActorUserID)
		assert.Empty(t, events[0].BusinessID)
	})

	t.Run("type required", func(t *testing.T) {
		t.Parallel()
		l := audit.NewLogger(audit.NewMemoryStorage())
		assert.ErrorIs(t, l.Log(context.Background(), "biz", ""), audit.ErrEventValidation)
	})

	t.Run("nil storage panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { audit.NewLogger(nil) })
	})
}

func TestMemoryStorageQuery(t *testing.T) {
	t.Parallel()

	store := audit.NewMemoryStorage()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, typ := range []string{"a", "b", "a", "a"} {
		require.NoError(t, store.Store(context.Background(), audit.Event{
			Type: typ, BusinessID: "biz", Timestamp: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	got, err := store.Query(context.Background(), audit.Filter{Type: "a", Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Timestamp.After(got[1].Timestamp), "newest first")

	got, err = store.Query(context.Background(), audit.Filter{Since: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
