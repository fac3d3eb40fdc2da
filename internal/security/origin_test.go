package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trust-engine/internal/models"
	"trust-engine/internal/repository/memory"
)

func seedIP(t *testing.T, store *memory.IPHistoryStore, record *models.IPHistoryRecord) {
	t.Helper()
	require.NoError(t, store.Upsert(context.Background(), record))
}

func TestOriginScore_FirstLogin(t *testing.T) {
	store := memory.NewIPHistoryStore()
	scorer := NewOriginScorer(store, NewStaticGeolocator(nil))

	score := scorer.Score(context.Background(), "user-1", "203.0.113.7", time.Now().UTC())
	assert.Equal(t, 0.6, score)
}

func TestOriginScore_KnownAddressAges(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name      string
		firstSeen time.Time
		want      float64
	}{
		{"established 100 days", now.AddDate(0, 0, -100), 1.0},
		{"established 90 days", now.AddDate(0, 0, -90).Add(-time.Hour), 1.0},
		{"known 45 days", now.AddDate(0, 0, -45), 0.9},
		{"recent 10 days", now.AddDate(0, 0, -10), 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewIPHistoryStore()
			scorer := NewOriginScorer(store, NewStaticGeolocator(nil))
			seedIP(t, store, &models.IPHistoryRecord{
				UserID: "user-1", IPAddress: "203.0.113.7",
				FirstSeen: tt.firstSeen, LastSeen: now, LoginCount: 10,
			})

			assert.Equal(t, tt.want, scorer.Score(context.Background(), "user-1", "203.0.113.7", now))
		})
	}
}

func TestOriginScore_AnonymizingRelay(t *testing.T) {
	now := time.Now().UTC()
	store := memory.NewIPHistoryStore()
	scorer := NewOriginScorer(store, NewStaticGeolocator(nil))
	seedIP(t, store, &models.IPHistoryRecord{
		UserID: "user-1", IPAddress: "198.51.100.9", IsVPN: true,
		FirstSeen: now.AddDate(0, 0, -200), LastSeen: now,
	})

	assert.Equal(t, 0.3, scorer.Score(context.Background(), "user-1", "198.51.100.9", now))
}

func TestOriginScore_ImpossibleTravel(t *testing.T) {
	now := time.Now().UTC()
	store := memory.NewIPHistoryStore()
	// New York to London in ten minutes.
	geo := NewStaticGeolocator(map[string]GeoInfo{
		"198.51.100.9": {CountryCode: "GB", Latitude: 51.5074, Longitude: -0.1278, HasCoords: true},
	})
	scorer := NewOriginScorer(store, geo)
	seedIP(t, store, &models.IPHistoryRecord{
		UserID: "user-1", IPAddress: "203.0.113.7", CountryCode: "US",
		Latitude: 40.7128, Longitude: -74.0060, HasCoords: true,
		FirstSeen: now.AddDate(0, 0, -30), LastSeen: now.Add(-10 * time.Minute),
	})

	assert.Equal(t, 0.2, scorer.Score(context.Background(), "user-1", "198.51.100.9", now))
}

func TestOriginScore_NewAddressSameCountry(t *testing.T) {
	now := time.Now().UTC()
	store := memory.NewIPHistoryStore()
	geo := NewStaticGeolocator(map[string]GeoInfo{
		"198.51.100.9": {CountryCode: "US", Latitude: 34.0522, Longitude: -118.2437, HasCoords: true},
	})
	scorer := NewOriginScorer(store, geo)
	seedIP(t, store, &models.IPHistoryRecord{
		UserID: "user-1", IPAddress: "203.0.113.7", CountryCode: "US",
		Latitude: 40.7128, Longitude: -74.0060, HasCoords: true,
		FirstSeen: now.AddDate(0, 0, -30), LastSeen: now.Add(-48 * time.Hour),
	})

	assert.Equal(t, 0.7, scorer.Score(context.Background(), "user-1", "198.51.100.9", now))
}

func TestOriginScore_NewAddressDifferentCountry(t *testing.T) {
	now := time.Now().UTC()
	store := memory.NewIPHistoryStore()
	geo := NewStaticGeolocator(map[string]GeoInfo{
		"198.51.100.9": {CountryCode: "GB", Latitude: 51.5074, Longitude: -0.1278, HasCoords: true},
	})
	scorer := NewOriginScorer(store, geo)
	seedIP(t, store, &models.IPHistoryRecord{
		UserID: "user-1", IPAddress: "203.0.113.7", CountryCode: "US",
		Latitude: 40.7128, Longitude: -74.0060, HasCoords: true,
		FirstSeen: now.AddDate(0, 0, -30), LastSeen: now.Add(-48 * time.Hour),
	})

	assert.Equal(t, 0.5, scorer.Score(context.Background(), "user-1", "198.51.100.9", now))
}

func TestOriginScore_NewAddressNoCoords(t *testing.T) {
	now := time.Now().UTC()
	store := memory.NewIPHistoryStore()
	scorer := NewOriginScorer(store, NewStaticGeolocator(nil))
	seedIP(t, store, &models.IPHistoryRecord{
		UserID: "user-1", IPAddress: "203.0.113.7",
		FirstSeen: now.AddDate(0, 0, -30), LastSeen: now,
	})

	assert.Equal(t, 0.6, scorer.Score(context.Background(), "user-1", "198.51.100.9", now))
}

func TestDistanceKm(t *testing.T) {
	// New York to London is roughly 5570 km.
	distance := DistanceKm(40.7128, -74.0060, 51.5074, -0.1278)
	assert.InDelta(t, 5570, distance, 50)

	assert.InDelta(t, 0, DistanceKm(40.7128, -74.0060, 40.7128, -74.0060), 1e-9)
}
