package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trust-engine/internal/models"
	"trust-engine/internal/repository"
)

func TestInterestStore_CRUD(t *testing.T) {
	store := NewInterestStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := store.Get(ctx, "user-1", "AAPL")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, store.Upsert(ctx, &models.InterestRecord{
		UserID: "user-1", Symbol: "AAPL", Score: 0.5, FirstSeen: now, LastInteraction: now,
	}))

	record, err := store.Get(ctx, "user-1", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 0.5, record.Score)

	count, err := store.CountByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, store.Delete(ctx, "user-1", "AAPL"))
	_, err = store.Get(ctx, "user-1", "AAPL")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestInterestStore_ReturnsCopies(t *testing.T) {
	store := NewInterestStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Upsert(ctx, &models.InterestRecord{
		UserID: "user-1", Symbol: "AAPL", Score: 0.5, FirstSeen: now, LastInteraction: now,
	}))

	record, err := store.Get(ctx, "user-1", "AAPL")
	require.NoError(t, err)
	record.Score = 0.99

	fresh, err := store.Get(ctx, "user-1", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 0.5, fresh.Score)
}

func TestEventStore_ListMostRecentFirst(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, &models.ActivityEvent{
			UserID: "user-1", Symbol: "AAPL", ActionType: models.ActionView,
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	events, err := store.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.True(t, events[0].OccurredAt.After(events[1].OccurredAt))
	assert.True(t, events[1].OccurredAt.After(events[2].OccurredAt))
}

func TestLoginPatternStore_DeepCopiesHistograms(t *testing.T) {
	store := NewLoginPatternStore()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &models.LoginTimePattern{
		UserID:        "user-1",
		HourHistogram: map[string]int{"9": 3},
		TotalLogins:   3,
	}))

	pattern, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	pattern.HourHistogram["9"] = 999

	fresh, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, fresh.HourHistogram["9"])
}

func TestStores_DeleteByUserIsScoped(t *testing.T) {
	stores := NewStores()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, user := range []string{"user-1", "user-2"} {
		require.NoError(t, stores.Interests.Upsert(ctx, &models.InterestRecord{
			UserID: user, Symbol: "AAPL", Score: 0.5, FirstSeen: now, LastInteraction: now,
		}))
	}

	require.NoError(t, stores.Interests.DeleteByUser(ctx, "user-1"))

	count, err := stores.Interests.CountByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = stores.Interests.CountByUser(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
