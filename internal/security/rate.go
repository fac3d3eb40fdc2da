package security

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"trust-engine/internal/repository"
	"trust-engine/internal/util"
)

// RequestCounters exposes the real-time rolling request counts for a
// user. The Redis rate cache satisfies this.
type RequestCounters interface {
	RequestRates(ctx context.Context, userID string) (minute, hour int64, err error)
}

// RateScorer scores the request-behavior factor. Real-time counters are
// preferred; the persisted activity record is the fallback. Carries 10%
// of the ensemble weight.
type RateScorer struct {
	counters RequestCounters
	activity repository.APIActivityStore
}

func NewRateScorer(counters RequestCounters, activity repository.APIActivityStore) *RateScorer {
	return &RateScorer{
		counters: counters,
		activity: activity,
	}
}

func (s *RateScorer) Score(ctx context.Context, userID string) float64 {
	if s.counters != nil {
		minute, hour, err := s.counters.RequestRates(ctx, userID)
		if err == nil {
			return scoreFromRates(userID, minute, hour)
		}
		util.Warn("Rate counters unavailable, falling back to stored activity",
			zap.String("user_id", userID),
			zap.Error(err))
	}

	return s.fallbackScore(ctx, userID)
}

func scoreFromRates(userID string, minute, hour int64) float64 {
	if minute > 30 {
		util.Warn("Request burst detected",
			zap.String("user_id", userID),
			zap.Int64("requests_per_minute", minute))
		return 0.1
	}

	switch {
	case hour > 1000:
		util.Warn("Excessive hourly request rate",
			zap.String("user_id", userID),
			zap.Int64("requests_per_hour", hour))
		return 0.3
	case hour > 500:
		return 0.6
	case hour > 100:
		return 0.9
	default:
		return 1.0
	}
}

func (s *RateScorer) fallbackScore(ctx context.Context, userID string) float64 {
	record, err := s.activity.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			util.Warn("API activity record unavailable",
				zap.String("user_id", userID),
				zap.Error(err))
		}
		return 1.0
	}

	switch {
	case record.FailedLoginsLastHour >= 5:
		util.Warn("Possible brute-force activity",
			zap.String("user_id", userID),
			zap.Int64("failed_logins", record.FailedLoginsLastHour))
		return 0.2
	case record.FailedLoginsLastHour >= 3:
		return 0.4
	}

	if record.RapidRequests {
		return 0.1
	}

	return 1.0
}
