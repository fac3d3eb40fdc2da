package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trust-engine/internal/models"
	"trust-engine/internal/repository"
	"trust-engine/internal/repository/memory"
	"trust-engine/internal/security"
)

type captureNotifier struct {
	mu       sync.Mutex
	activity []*models.ActivityEvent
	removals []*models.RemovalNotice
}

func (n *captureNotifier) PublishActivity(_ context.Context, event *models.ActivityEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.activity = append(n.activity, event)
	return nil
}

func (n *captureNotifier) NotifyRemoval(_ context.Context, notice *models.RemovalNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.removals = append(n.removals, notice)
	return nil
}

func setupActivityService() (*ActivityService, *repository.Stores, *captureNotifier) {
	stores := memory.NewStores()
	notifier := &captureNotifier{}
	svc := NewActivityService(stores, security.NewStaticGeolocator(nil), notifier, nil, nil)
	return svc, stores, notifier
}

func TestTrack_ScoresByActionWeight(t *testing.T) {
	svc, stores, _ := setupActivityService()
	ctx := context.Background()

	tests := []struct {
		action string
		want   float64
	}{
		{models.ActionView, 0.05},
		{models.ActionSearch, 0.15},
		{models.ActionAlertSet, 0.25},
		{models.ActionWatchlistAdd, 0.40},
		{models.ActionTrade, 0.50},
		{"unknown_action", 0.05},
	}

	for i, tt := range tests {
		symbol := fmt.Sprintf("SYM%d", i)
		require.NoError(t, svc.Track(ctx, "user-1", symbol, "stock", tt.action, nil))

		record, err := stores.Interests.Get(ctx, "user-1", symbol)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, record.Score, 1e-9, "action %s", tt.action)
		assert.Equal(t, int64(1), record.ActivityCount)
	}
}

func TestTrack_ScoreAccumulatesAndCaps(t *testing.T) {
	svc, stores, _ := setupActivityService()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, svc.Track(ctx, "user-1", "AAPL", "stock", models.ActionView, nil))
	}
	record, err := stores.Interests.Get(ctx, "user-1", "AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 0.20, record.Score, 1e-9)
	assert.Equal(t, int64(4), record.ActivityCount)

	// Score never exceeds 1.0 no matter how much activity piles on.
	for i := 0; i < 30; i++ {
		require.NoError(t, svc.Track(ctx, "user-1", "AAPL", "stock", models.ActionTrade, nil))
	}
	record, err = stores.Interests.Get(ctx, "user-1", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1.0, record.Score)
}

func TestTrack_NormalizesSymbol(t *testing.T) {
	svc, stores, _ := setupActivityService()
	ctx := context.Background()

	require.NoError(t, svc.Track(ctx, "user-1", " aapl ", "stock", models.ActionView, nil))
	require.NoError(t, svc.Track(ctx, "user-1", "AAPL", "stock", models.ActionView, nil))

	record, err := stores.Interests.Get(ctx, "user-1", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(2), record.ActivityCount)
}

func TestTrack_RejectsEmptyInput(t *testing.T) {
	svc, _, _ := setupActivityService()
	ctx := context.Background()

	assert.ErrorIs(t, svc.Track(ctx, "", "AAPL", "stock", models.ActionView, nil), ErrInvalidInput)
	assert.ErrorIs(t, svc.Track(ctx, "user-1", "  ", "stock", models.ActionView, nil), ErrInvalidInput)
}

func TestTrack_PinsOnTradeWithPortfolioValue(t *testing.T) {
	svc, stores, _ := setupActivityService()
	ctx := context.Background()

	metadata := models.Metadata{"portfolio_value": models.MetaNum(2500)}
	require.NoError(t, svc.Track(ctx, "user-1", "AAPL", "stock", models.ActionTrade, metadata))

	record, err := stores.Interests.Get(ctx, "user-1", "AAPL")
	require.NoError(t, err)
	assert.True(t, record.IsPinned)
	require.NotNil(t, record.PortfolioValue)
	assert.Equal(t, 2500.0, *record.PortfolioValue)
}

func TestTrack_NoPinWithoutPortfolioValue(t *testing.T) {
	svc, stores, _ := setupActivityService()
	ctx := context.Background()

	// A trade alone does not pin; neither does a zero position.
	require.NoError(t, svc.Track(ctx, "user-1", "AAPL", "stock", models.ActionTrade, nil))
	require.NoError(t, svc.Track(ctx, "user-1", "MSFT", "stock", models.ActionTrade,
		models.Metadata{"portfolio_value": models.MetaNum(0)}))

	for _, symbol := range []string{"AAPL", "MSFT"} {
		record, err := stores.Interests.Get(ctx, "user-1", symbol)
		require.NoError(t, err)
		assert.False(t, record.IsPinned, symbol)
		assert.Nil(t, record.PortfolioValue, symbol)
	}
}

func TestTrack_AppendsEvent(t *testing.T) {
	svc, stores, notifier := setupActivityService()
	ctx := context.Background()

	require.NoError(t, svc.Track(ctx, "user-1", "AAPL", "stock", models.ActionSearch, nil))

	events, err := stores.Events.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "AAPL", events[0].Symbol)
	assert.Equal(t, models.ActionSearch, events[0].ActionType)

	assert.Len(t, notifier.activity, 1)
}

func TestTrack_PrunesLowestNonPinned(t *testing.T) {
	svc, stores, notifier := setupActivityService()
	ctx := context.Background()
	now := time.Now().UTC()

	// Fill to the cap with ascending scores; WEAK is the obvious victim.
	require.NoError(t, stores.Interests.Upsert(ctx, &models.InterestRecord{
		UserID: "user-1", Symbol: "WEAK", AssetType: "stock",
		Score: 0.01, FirstSeen: now.AddDate(0, 0, -40), LastInteraction: now.AddDate(0, 0, -40),
	}))
	for i := 1; i < models.MaxLibrarySize; i++ {
		require.NoError(t, stores.Interests.Upsert(ctx, &models.InterestRecord{
			UserID: "user-1", Symbol: fmt.Sprintf("SYM%02d", i), AssetType: "stock",
			Score: 0.1 + float64(i)*0.01, FirstSeen: now, LastInteraction: now,
		}))
	}

	require.NoError(t, svc.Track(ctx, "user-1", "FRESH", "stock", models.ActionTrade, nil))

	_, err := stores.Interests.Get(ctx, "user-1", "WEAK")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	count, err := stores.Interests.CountByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.MaxLibrarySize, count)

	require.Len(t, notifier.removals, 1)
	assert.Equal(t, "WEAK", notifier.removals[0].RemovedSymbol)
	assert.Equal(t, "low_activity", notifier.removals[0].Reason)
	assert.Equal(t, 40, notifier.removals[0].DaysInactive)
}

func TestTrack_NeverEvictsPinned(t *testing.T) {
	svc, stores, _ := setupActivityService()
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < models.MaxLibrarySize; i++ {
		require.NoError(t, stores.Interests.Upsert(ctx, &models.InterestRecord{
			UserID: "user-1", Symbol: fmt.Sprintf("PIN%02d", i), AssetType: "stock",
			Score: 0.01, IsPinned: true, FirstSeen: now, LastInteraction: now,
		}))
	}

	require.NoError(t, svc.Track(ctx, "user-1", "FRESH", "stock", models.ActionView, nil))

	// An all-pinned library is allowed to overflow the cap.
	count, err := stores.Interests.CountByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.MaxLibrarySize+1, count)
}

func TestTrackLogin_BuildsProfiles(t *testing.T) {
	svc, stores, _ := setupActivityService()
	ctx := context.Background()

	lc := &models.LoginContext{
		UserID:    "user-1",
		IPAddress: "203.0.113.7",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
		Timestamp: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC), // a Monday
	}
	require.NoError(t, svc.TrackLogin(ctx, lc))
	require.NoError(t, svc.TrackLogin(ctx, lc))

	ips, err := stores.IPHistory.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, ips, 1)
	assert.Equal(t, int64(2), ips[0].LoginCount)

	devices, err := stores.Devices.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "Chrome", devices[0].Browser)
	assert.Equal(t, int64(2), devices[0].LoginCount)

	pattern, err := stores.Patterns.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), pattern.TotalLogins)
	assert.Equal(t, 2, pattern.HourHistogram["9"])
	assert.Equal(t, 2, pattern.WeekdayHistogram["0"])
	assert.Empty(t, pattern.PeakHours)
}

func TestTrackLogin_PeakHoursEmerge(t *testing.T) {
	svc, stores, _ := setupActivityService()
	ctx := context.Background()

	lc := &models.LoginContext{
		UserID:    "user-1",
		Timestamp: time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
	}
	for i := 0; i < peakHourThreshold; i++ {
		require.NoError(t, svc.TrackLogin(ctx, lc))
	}

	pattern, err := stores.Patterns.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []int{14}, pattern.PeakHours)
}

func TestTrackFailedLogin(t *testing.T) {
	svc, stores, _ := setupActivityService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.TrackFailedLogin(ctx, "user-1"))
	}

	record, err := stores.APIActivity.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), record.FailedLoginsLastHour)
	assert.Equal(t, int64(3), record.FailedLoginsLastDay)
	assert.False(t, record.LastFailedLogin.IsZero())
}
