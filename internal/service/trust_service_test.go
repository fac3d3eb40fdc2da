package service

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trust-engine/internal/models"
	"trust-engine/internal/repository"
	"trust-engine/internal/repository/memory"
	"trust-engine/internal/security"
)

const testUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

func setupTrustService() (*TrustService, *repository.Stores, *LibraryService) {
	stores := memory.NewStores()
	library := NewLibraryService(stores.Interests, stores.Versions, nil, nil)
	svc := NewTrustService(
		security.NewOriginScorer(stores.IPHistory, security.NewStaticGeolocator(nil)),
		security.NewDeviceScorer(stores.Devices),
		security.NewTimePatternScorer(stores.Patterns),
		security.NewRateScorer(nil, stores.APIActivity),
		library,
	)
	return svc, stores, library
}

func TestEvaluate_UnknownUserIsNeutral(t *testing.T) {
	svc, _, _ := setupTrustService()

	result, err := svc.Evaluate(context.Background(), &models.LoginContext{
		UserID:    "user-1",
		IPAddress: "203.0.113.7",
		UserAgent: testUserAgent,
	})
	require.NoError(t, err)

	// First-contact factors: origin 0.6, device 0.6, fingerprint 0.5,
	// time 0.7, rate 1.0.
	want := 0.6*weightOrigin + 0.6*weightDevice + 0.5*weightFingerprint +
		0.7*weightTimePattern + 1.0*weightRequestRate
	assert.InDelta(t, want, result.TrustScore, 1e-9)
	assert.Equal(t, models.RiskMedium, result.RiskLevel)
	assert.Equal(t, models.ActionMonitor, result.Action)
	assert.Len(t, result.Factors, 5)
}

func TestEvaluate_EstablishedUserAllowed(t *testing.T) {
	svc, stores, library := setupTrustService()
	ctx := context.Background()
	now := time.Now().UTC()

	// Address known for more than 90 days, trusted device, routine
	// hour, matching fingerprint, quiet request behavior.
	require.NoError(t, stores.IPHistory.Upsert(ctx, &models.IPHistoryRecord{
		UserID: "user-1", IPAddress: "203.0.113.7",
		FirstSeen: now.AddDate(0, 0, -100), LastSeen: now, LoginCount: 200,
	}))
	hash := security.GenerateDeviceFingerprint(testUserAgent)
	require.NoError(t, stores.Devices.Upsert(ctx, &models.DeviceRecord{
		UserID: "user-1", FingerprintHash: hash, UserAgent: testUserAgent,
		Browser: "Chrome", DeviceType: models.DeviceDesktop, IsTrusted: true,
		FirstSeen: now.AddDate(0, 0, -100), LastLogin: now,
	}))
	hour := strconv.Itoa(now.Hour())
	require.NoError(t, stores.Patterns.Upsert(ctx, &models.LoginTimePattern{
		UserID:           "user-1",
		HourHistogram:    map[string]int{hour: 50},
		WeekdayHistogram: map[string]int{"0": 50},
		PeakHours:        []int{now.Hour()},
		TotalLogins:      50,
	}))
	require.NoError(t, stores.Interests.Upsert(ctx, &models.InterestRecord{
		UserID: "user-1", Symbol: "AAPL", AssetType: "stock",
		Score: 0.8, FirstSeen: now, LastInteraction: now,
	}))
	snapshot, err := library.GenerateSnapshot(ctx, "user-1")
	require.NoError(t, err)

	result, err := svc.Evaluate(ctx, &models.LoginContext{
		UserID:             "user-1",
		IPAddress:          "203.0.113.7",
		UserAgent:          testUserAgent,
		LibraryFingerprint: snapshot.Fingerprint,
		Timestamp:          now,
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, result.TrustScore)
	assert.Equal(t, models.RiskLow, result.RiskLevel)
	assert.Equal(t, models.ActionAllow, result.Action)
	assert.Equal(t, 1.0, result.Factors[models.FactorOrigin])
	assert.Equal(t, 1.0, result.Factors[models.FactorDevice])
	assert.Equal(t, 1.0, result.Factors[models.FactorFingerprint])
	assert.Equal(t, 1.0, result.Factors[models.FactorTimePattern])
	assert.Equal(t, 1.0, result.Factors[models.FactorRequestRate])
}

func TestEvaluate_HostileSignalsBlock(t *testing.T) {
	svc, stores, _ := setupTrustService()
	ctx := context.Background()
	now := time.Now().UTC()

	// VPN origin, brand-new device against a desktop Chrome history,
	// login at an hour far from every peak, brute-force signals.
	require.NoError(t, stores.IPHistory.Upsert(ctx, &models.IPHistoryRecord{
		UserID: "user-1", IPAddress: "198.51.100.9", IsVPN: true,
		FirstSeen: now.AddDate(0, 0, -5), LastSeen: now, LoginCount: 3,
	}))
	require.NoError(t, stores.Devices.Upsert(ctx, &models.DeviceRecord{
		UserID: "user-1", FingerprintHash: "known-device", UserAgent: testUserAgent,
		Browser: "Chrome", DeviceType: models.DeviceDesktop,
		FirstSeen: now.AddDate(0, 0, -60), LastLogin: now,
	}))
	require.NoError(t, stores.Patterns.Upsert(ctx, &models.LoginTimePattern{
		UserID:           "user-1",
		HourHistogram:    map[string]int{"10": 40},
		WeekdayHistogram: map[string]int{"0": 40},
		PeakHours:        []int{10},
		TotalLogins:      40,
	}))
	require.NoError(t, stores.APIActivity.Upsert(ctx, &models.APIActivityRecord{
		UserID: "user-1", FailedLoginsLastHour: 7, RapidRequests: true,
	}))

	safariUA := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	result, err := svc.Evaluate(ctx, &models.LoginContext{
		UserID:             "user-1",
		IPAddress:          "198.51.100.9",
		UserAgent:          safariUA,
		LibraryFingerprint: "wrong-fingerprint",
		Timestamp:          time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// 0.3, 0.4, 0.3, 0.3, 0.2 against the ensemble weights.
	want := round3(0.3*weightOrigin + 0.4*weightDevice + 0.3*weightFingerprint +
		0.3*weightTimePattern + 0.2*weightRequestRate)
	assert.Equal(t, want, result.TrustScore)
	assert.Equal(t, models.RiskHigh, result.RiskLevel)
	assert.Equal(t, models.ActionBlock, result.Action)
}

func TestEvaluate_RejectsEmptyUser(t *testing.T) {
	svc, _, _ := setupTrustService()

	_, err := svc.Evaluate(context.Background(), &models.LoginContext{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		score  float64
		level  string
		action string
	}{
		{1.0, models.RiskLow, models.ActionAllow},
		{0.80, models.RiskLow, models.ActionAllow},
		{0.79, models.RiskMedium, models.ActionMonitor},
		{0.60, models.RiskMedium, models.ActionMonitor},
		{0.59, models.RiskElevated, models.ActionRequireMFA},
		{0.40, models.RiskElevated, models.ActionRequireMFA},
		{0.39, models.RiskHigh, models.ActionBlock},
		{0.0, models.RiskHigh, models.ActionBlock},
	}
	for _, tt := range tests {
		level, action := classify(tt.score)
		assert.Equal(t, tt.level, level, "score %v", tt.score)
		assert.Equal(t, tt.action, action, "score %v", tt.score)
	}
}
