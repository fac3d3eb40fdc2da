package security

import (
	"context"
	"time"

	"go.uber.org/zap"

	"trust-engine/internal/repository"
	"trust-engine/internal/util"
)

const originNeutral = 0.6

// OriginScorer scores the network-origin factor from a user's address
// history. Carries 30% of the ensemble weight.
type OriginScorer struct {
	history repository.IPHistoryStore
	geo     Geolocator
}

func NewOriginScorer(history repository.IPHistoryStore, geo Geolocator) *OriginScorer {
	return &OriginScorer{
		history: history,
		geo:     geo,
	}
}

// Score rates the originating address against the user's history.
// First login 0.6, anonymizing relay 0.3, established addresses up to
// 1.0, impossible travel 0.2.
func (s *OriginScorer) Score(ctx context.Context, userID, ipAddress string, now time.Time) float64 {
	records, err := s.history.ListByUser(ctx, userID)
	if err != nil {
		util.Warn("Origin history unavailable, using neutral score",
			zap.String("user_id", userID),
			zap.Error(err))
		return originNeutral
	}

	if len(records) == 0 {
		util.Debug("First origin for user", zap.String("user_id", userID))
		return originNeutral
	}

	for _, record := range records {
		if record.IPAddress != ipAddress {
			continue
		}

		if record.IsVPN || record.IsProxy {
			util.Warn("Anonymizing origin detected",
				zap.String("user_id", userID),
				zap.String("ip_address", ipAddress))
			return 0.3
		}

		daysKnown := int(now.Sub(record.FirstSeen).Hours() / 24)
		switch {
		case daysKnown >= 90:
			return 1.0
		case daysKnown >= 30:
			return 0.9
		default:
			return 0.8
		}
	}

	// Unknown address. records are ordered most recent first.
	mostRecent := records[0]

	if mostRecent.HasCoords {
		geo, err := s.geo.Resolve(ctx, ipAddress)
		if err == nil && geo.HasCoords {
			distance := DistanceKm(mostRecent.Latitude, mostRecent.Longitude, geo.Latitude, geo.Longitude)
			hoursSince := now.Sub(mostRecent.LastSeen).Hours()

			if distance > 1000 && hoursSince < 1 {
				util.Warn("Impossible travel detected",
					zap.String("user_id", userID),
					zap.Float64("distance_km", distance),
					zap.Float64("hours_since", hoursSince))
				return 0.2
			}

			if geo.CountryCode == mostRecent.CountryCode {
				return 0.7
			}
			return 0.5
		}
	}

	return originNeutral
}
