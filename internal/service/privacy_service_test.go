package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trust-engine/internal/config"
	"trust-engine/internal/encryption"
	"trust-engine/internal/hashing"
	"trust-engine/internal/models"
	"trust-engine/internal/repository"
	"trust-engine/internal/repository/memory"
)

var recoveryCodePattern = regexp.MustCompile(`^QT(-[A-Z0-9]{4}){4}$`)

func setupPrivacyService() (*PrivacyService, *repository.Stores) {
	cfg := config.LoadConfig()
	stores := memory.NewStores()
	library := NewLibraryService(stores.Interests, stores.Versions, nil, nil)
	svc := NewPrivacyService(
		stores,
		library,
		hashing.NewHasher(cfg),
		encryption.NewEncryptionManager(cfg, nil),
		nil,
		nil,
	)
	return svc, stores
}

func TestGenerateRecoveryArtifact_CodeFormat(t *testing.T) {
	svc, stores := setupPrivacyService()
	ctx := context.Background()

	code, err := svc.GenerateRecoveryArtifact(ctx, "user-1")
	require.NoError(t, err)
	assert.Regexp(t, recoveryCodePattern, code)

	// Only the hash and the sealed bundle are persisted.
	artifact, err := stores.Recovery.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, artifact.CodeHash)
	assert.NotEmpty(t, artifact.CodeSalt)
	assert.NotEmpty(t, artifact.BundleEncrypted)
	assert.NotContains(t, artifact.CodeHash, code)
	assert.NotContains(t, artifact.BundleEncrypted, code)
}

func TestGenerateRecoveryArtifact_CodesAreUnique(t *testing.T) {
	svc, _ := setupPrivacyService()
	ctx := context.Background()

	first, err := svc.GenerateRecoveryArtifact(ctx, "user-1")
	require.NoError(t, err)
	second, err := svc.GenerateRecoveryArtifact(ctx, "user-1")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestVerifyRecoveryCode_RoundTrip(t *testing.T) {
	svc, stores := setupPrivacyService()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, stores.Interests.Upsert(ctx, &models.InterestRecord{
		UserID: "user-1", Symbol: "AAPL", AssetType: "stock",
		Score: 0.85, IsPinned: true, FirstSeen: now, LastInteraction: now,
	}))
	require.NoError(t, stores.Interests.Upsert(ctx, &models.InterestRecord{
		UserID: "user-1", Symbol: "MSFT", AssetType: "stock",
		Score: 0.4, FirstSeen: now, LastInteraction: now,
	}))

	code, err := svc.GenerateRecoveryArtifact(ctx, "user-1")
	require.NoError(t, err)

	bundle, err := svc.VerifyRecoveryCode(ctx, "user-1", code)
	require.NoError(t, err)
	assert.Equal(t, 2, bundle.TotalItems)
	assert.Equal(t, 1, bundle.PinnedCount)
	require.Len(t, bundle.CoreInterests, 2)
	assert.Equal(t, "AAPL", bundle.CoreInterests[0].Symbol)
	assert.Equal(t, models.TierPinned, bundle.CoreInterests[0].Tier)
}

func TestVerifyRecoveryCode_AcrossRestart(t *testing.T) {
	cfg := config.LoadConfig()
	cfg.Hashing.PepperSecret = "unit-test-pepper-secret"
	stores := memory.NewStores()
	ctx := context.Background()
	now := time.Now().UTC()

	newService := func() *PrivacyService {
		library := NewLibraryService(stores.Interests, stores.Versions, nil, nil)
		return NewPrivacyService(
			stores,
			library,
			hashing.NewHasher(cfg),
			encryption.NewEncryptionManager(cfg, nil),
			nil,
			nil,
		)
	}

	require.NoError(t, stores.Interests.Upsert(ctx, &models.InterestRecord{
		UserID: "user-1", Symbol: "AAPL", AssetType: "stock",
		Score: 0.85, IsPinned: true, FirstSeen: now, LastInteraction: now,
	}))

	code, err := newService().GenerateRecoveryArtifact(ctx, "user-1")
	require.NoError(t, err)

	// A second service with a fresh hasher and encryption manager
	// stands in for a restarted process. The persisted artifact alone
	// must be enough to verify the code and unseal the bundle.
	bundle, err := newService().VerifyRecoveryCode(ctx, "user-1", code)
	require.NoError(t, err)
	assert.Equal(t, 1, bundle.TotalItems)
	assert.Equal(t, 1, bundle.PinnedCount)
}

func TestVerifyRecoveryCode_WrongCode(t *testing.T) {
	svc, _ := setupPrivacyService()
	ctx := context.Background()

	_, err := svc.GenerateRecoveryArtifact(ctx, "user-1")
	require.NoError(t, err)

	_, err = svc.VerifyRecoveryCode(ctx, "user-1", "QT-AAAA-BBBB-CCCC-DDDD")
	assert.ErrorIs(t, err, ErrRecoveryCodeMismatch)
}

func TestVerifyRecoveryCode_NoArtifact(t *testing.T) {
	svc, _ := setupPrivacyService()

	_, err := svc.VerifyRecoveryCode(context.Background(), "user-1", "QT-AAAA-BBBB-CCCC-DDDD")
	assert.ErrorIs(t, err, ErrRecoveryNotFound)
}

func TestExport_GathersEverything(t *testing.T) {
	svc, stores := setupPrivacyService()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, stores.Interests.Upsert(ctx, &models.InterestRecord{
		UserID: "user-1", Symbol: "AAPL", AssetType: "stock",
		Score: 0.5, FirstSeen: now, LastInteraction: now,
	}))
	require.NoError(t, stores.Events.Append(ctx, &models.ActivityEvent{
		UserID: "user-1", Symbol: "AAPL", AssetType: "stock",
		ActionType: models.ActionView, OccurredAt: now,
	}))

	payload, err := svc.Export(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, "user-1", payload.UserID)
	assert.Equal(t, 1, payload.TotalInterests)
	assert.Equal(t, 1, payload.TotalEvents)
	require.NotNil(t, payload.CurrentLibrary)
	assert.Equal(t, 1, payload.CurrentLibrary.TotalItems)
}

func TestDelete_RequiresConfirmation(t *testing.T) {
	svc, stores := setupPrivacyService()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, stores.Interests.Upsert(ctx, &models.InterestRecord{
		UserID: "user-1", Symbol: "AAPL", AssetType: "stock",
		Score: 0.5, FirstSeen: now, LastInteraction: now,
	}))

	_, err := svc.Delete(ctx, "user-1", "")
	assert.ErrorIs(t, err, ErrInvalidConfirmation)
	_, err = svc.Delete(ctx, "user-1", "delete_my_data")
	assert.ErrorIs(t, err, ErrInvalidConfirmation)

	// Nothing was touched by the rejected attempts.
	count, err := stores.Interests.CountByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDelete_ErasesEverything(t *testing.T) {
	svc, stores := setupPrivacyService()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, stores.Interests.Upsert(ctx, &models.InterestRecord{
		UserID: "user-1", Symbol: "AAPL", AssetType: "stock",
		Score: 0.5, FirstSeen: now, LastInteraction: now,
	}))
	require.NoError(t, stores.Events.Append(ctx, &models.ActivityEvent{
		UserID: "user-1", Symbol: "AAPL", ActionType: models.ActionView, OccurredAt: now,
	}))
	require.NoError(t, stores.Patterns.Upsert(ctx, &models.LoginTimePattern{
		UserID: "user-1", HourHistogram: map[string]int{"9": 3}, TotalLogins: 3,
	}))
	_, err := svc.GenerateRecoveryArtifact(ctx, "user-1")
	require.NoError(t, err)

	result, err := svc.Delete(ctx, "user-1", "DELETE_MY_DATA")
	require.NoError(t, err)
	assert.Equal(t, "user-1", result.UserID)

	count, err := stores.Interests.CountByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	events, err := stores.Events.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = stores.Patterns.Get(ctx, "user-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = stores.Recovery.Get(ctx, "user-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestGenerateRecoveryCode_Charset(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := generateRecoveryCode()
		require.NoError(t, err)
		assert.Regexp(t, recoveryCodePattern, code)
	}
}
