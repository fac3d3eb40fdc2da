package security

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"trust-engine/internal/repository"
	"trust-engine/internal/util"
)

const timePatternNeutral = 0.7

// peakHourThreshold is the histogram count at which an hour counts as a
// peak.
const peakHourThreshold = 10

// TimePatternScorer scores the login-time factor from a user's hourly
// histogram. Carries 15% of the ensemble weight.
type TimePatternScorer struct {
	patterns repository.LoginPatternStore
}

func NewTimePatternScorer(patterns repository.LoginPatternStore) *TimePatternScorer {
	return &TimePatternScorer{patterns: patterns}
}

// Score rates a login timestamp against the user's hour-of-day history.
// Users with fewer than five recorded logins get the neutral score.
func (s *TimePatternScorer) Score(ctx context.Context, userID string, loginTime time.Time) float64 {
	pattern, err := s.patterns.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			util.Warn("Login pattern unavailable, using neutral score",
				zap.String("user_id", userID),
				zap.Error(err))
		}
		return timePatternNeutral
	}

	if pattern.TotalLogins < 5 {
		return timePatternNeutral
	}

	hour := loginTime.Hour()
	hourCount := pattern.HourHistogram[strconv.Itoa(hour)]

	switch {
	case hourCount >= peakHourThreshold:
		return 1.0
	case hourCount >= 5:
		return 0.9
	case hourCount >= 1:
		return 0.7
	}

	// Hour never seen. Distance to the nearest peak decides how
	// anomalous this is.
	if len(pattern.PeakHours) == 0 {
		return 0.5
	}

	minDistance := 24
	for _, peak := range pattern.PeakHours {
		distance := hour - peak
		if distance < 0 {
			distance = -distance
		}
		if distance < minDistance {
			minDistance = distance
		}
	}

	if minDistance > 6 {
		util.Warn("Login far outside usual hours",
			zap.String("user_id", userID),
			zap.Int("hour", hour),
			zap.Ints("peak_hours", pattern.PeakHours))
		return 0.3
	}
	return 0.5
}
