package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trust-engine/internal/models"
	"trust-engine/internal/repository"
	"trust-engine/internal/repository/memory"
)

func setupLibraryService() (*LibraryService, *repository.Stores) {
	stores := memory.NewStores()
	svc := NewLibraryService(stores.Interests, stores.Versions, nil, nil)
	return svc, stores
}

func seedInterest(t *testing.T, stores *repository.Stores, userID, symbol string, score float64, pinned bool) {
	t.Helper()
	now := time.Now().UTC()
	err := stores.Interests.Upsert(context.Background(), &models.InterestRecord{
		UserID:          userID,
		Symbol:          symbol,
		AssetType:       "stock",
		Score:           score,
		ActivityCount:   1,
		IsPinned:        pinned,
		FirstSeen:       now,
		LastInteraction: now,
	})
	require.NoError(t, err)
}

func TestGenerateSnapshot_EmptyLibrary(t *testing.T) {
	svc, _ := setupLibraryService()

	snapshot, err := svc.GenerateSnapshot(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, 1, snapshot.Version)
	assert.Equal(t, 0, snapshot.TotalItems)
	assert.Empty(t, snapshot.Items)
	assert.Equal(t, hashFingerprint("empty_library"), snapshot.Fingerprint)
}

func TestGenerateSnapshot_RankingAndTiers(t *testing.T) {
	svc, stores := setupLibraryService()
	ctx := context.Background()

	seedInterest(t, stores, "user-1", "AAPL", 0.9, false)
	seedInterest(t, stores, "user-1", "MSFT", 0.5, false)
	seedInterest(t, stores, "user-1", "TSLA", 0.1, true)

	snapshot, err := svc.GenerateSnapshot(ctx, "user-1")
	require.NoError(t, err)

	require.Len(t, snapshot.Items, 3)
	// Pinned outranks everything regardless of raw score.
	assert.Equal(t, "TSLA", snapshot.Items[0].Symbol)
	assert.Equal(t, models.TierPinned, snapshot.Items[0].Tier)
	assert.Equal(t, 1, snapshot.Items[0].Rank)
	assert.Equal(t, "AAPL", snapshot.Items[1].Symbol)
	assert.Equal(t, models.TierCore, snapshot.Items[1].Tier)
	assert.Equal(t, "MSFT", snapshot.Items[2].Symbol)

	assert.Equal(t, 1, snapshot.PinnedCount)
	assert.Equal(t, 4, snapshot.Version)
}

func TestGenerateSnapshot_CapsAtMaxSize(t *testing.T) {
	svc, stores := setupLibraryService()
	ctx := context.Background()

	for i := 0; i < models.MaxLibrarySize+10; i++ {
		seedInterest(t, stores, "user-1", fmt.Sprintf("SYM%02d", i), float64(i)*0.01, false)
	}

	snapshot, err := svc.GenerateSnapshot(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, models.MaxLibrarySize, snapshot.TotalItems)
	assert.Len(t, snapshot.Items, models.MaxLibrarySize)
	// The weakest symbols never make the cut.
	for _, item := range snapshot.Items {
		assert.NotEqual(t, "SYM00", item.Symbol)
	}
	// Ranks 31..50 fall into the exploration tier.
	assert.Equal(t, models.TierCore, snapshot.Items[29].Tier)
	assert.Equal(t, models.TierExploration, snapshot.Items[30].Tier)
}

func TestGenerateSnapshot_FingerprintDeterministic(t *testing.T) {
	svc, stores := setupLibraryService()
	ctx := context.Background()

	seedInterest(t, stores, "user-1", "AAPL", 0.8, false)
	seedInterest(t, stores, "user-1", "MSFT", 0.6, true)

	first, err := svc.GenerateSnapshot(ctx, "user-1")
	require.NoError(t, err)
	second, err := svc.GenerateSnapshot(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, first.Fingerprint, second.Fingerprint)
}

func TestGenerateSnapshot_FingerprintChangesWithPinStatus(t *testing.T) {
	svc, stores := setupLibraryService()
	ctx := context.Background()

	seedInterest(t, stores, "user-1", "AAPL", 0.8, false)
	before, err := svc.GenerateSnapshot(ctx, "user-1")
	require.NoError(t, err)

	seedInterest(t, stores, "user-1", "AAPL", 0.8, true)
	after, err := svc.GenerateSnapshot(ctx, "user-1")
	require.NoError(t, err)

	assert.NotEqual(t, before.Fingerprint, after.Fingerprint)
}

func TestGenerateSnapshot_RecordsVersionHistory(t *testing.T) {
	svc, stores := setupLibraryService()
	ctx := context.Background()

	seedInterest(t, stores, "user-1", "AAPL", 0.8, false)
	_, err := svc.GenerateSnapshot(ctx, "user-1")
	require.NoError(t, err)

	versions, err := stores.Versions.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 2, versions[0].Version)
	assert.Equal(t, 1, versions[0].ItemCount)

	// Regenerating with an unchanged library adds no version row.
	_, err = svc.GenerateSnapshot(ctx, "user-1")
	require.NoError(t, err)
	versions, err = stores.Versions.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestGenerateSnapshot_VersionTrailSurvivesShrink(t *testing.T) {
	svc, stores := setupLibraryService()
	ctx := context.Background()

	symbols := make([]string, 15)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("SYM%02d", i)
		seedInterest(t, stores, "user-1", symbols[i], 0.5, false)
	}

	first, err := svc.GenerateSnapshot(ctx, "user-1")
	require.NoError(t, err)

	// Shrink the library to 3 items. The resulting row carries a lower
	// version number than the one before it.
	for _, symbol := range symbols[3:] {
		require.NoError(t, stores.Interests.Delete(ctx, "user-1", symbol))
	}
	shrunk, err := svc.GenerateSnapshot(ctx, "user-1")
	require.NoError(t, err)
	require.NotEqual(t, first.Fingerprint, shrunk.Fingerprint)

	// Restore the original library. The fingerprint returns to its old
	// value, which is still a change against the shrunken row and must
	// be recorded.
	for _, symbol := range symbols[3:] {
		seedInterest(t, stores, "user-1", symbol, 0.5, false)
	}
	restored, err := svc.GenerateSnapshot(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, restored.Fingerprint)

	versions, err := stores.Versions.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, restored.Fingerprint, versions[0].Fingerprint)
	assert.Equal(t, shrunk.Fingerprint, versions[1].Fingerprint)
	assert.Equal(t, first.Fingerprint, versions[2].Fingerprint)
}

func TestVerifyFingerprint(t *testing.T) {
	svc, stores := setupLibraryService()
	ctx := context.Background()

	seedInterest(t, stores, "user-1", "AAPL", 0.8, false)
	snapshot, err := svc.GenerateSnapshot(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, 1.0, svc.VerifyFingerprint(ctx, "user-1", snapshot.Fingerprint))
	assert.Equal(t, 0.5, svc.VerifyFingerprint(ctx, "user-1", ""))
	assert.Equal(t, 0.3, svc.VerifyFingerprint(ctx, "user-1", "stale-fingerprint"))
}

func TestRound3(t *testing.T) {
	assert.Equal(t, 0.123, round3(0.1234))
	assert.Equal(t, 0.124, round3(0.1235))
	assert.Equal(t, 1.0, round3(1.0))
}
