package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"trust-engine/internal/models"
	"trust-engine/internal/security"
	"trust-engine/internal/util"
)

// Ensemble weights. They sum to 1.0 so the composite score stays in
// [0, 1] without renormalization.
const (
	weightOrigin      = 0.30
	weightDevice      = 0.25
	weightFingerprint = 0.20
	weightTimePattern = 0.15
	weightRequestRate = 0.10
)

// TrustService combines the factor scorers into one composite verdict.
// Every factor degrades to a neutral score on missing data, so an
// evaluation always produces a result.
type TrustService struct {
	origin      *security.OriginScorer
	device      *security.DeviceScorer
	timePattern *security.TimePatternScorer
	rate        *security.RateScorer
	library     *LibraryService
}

func NewTrustService(
	origin *security.OriginScorer,
	device *security.DeviceScorer,
	timePattern *security.TimePatternScorer,
	rate *security.RateScorer,
	library *LibraryService,
) *TrustService {
	return &TrustService{
		origin:      origin,
		device:      device,
		timePattern: timePattern,
		rate:        rate,
		library:     library,
	}
}

// Evaluate scores one login attempt. The five factors run concurrently;
// each reads stored behavior only, so evaluation never mutates state.
func (s *TrustService) Evaluate(ctx context.Context, lc *models.LoginContext) (*models.TrustResult, error) {
	userID := util.SanitizeInput(lc.UserID)
	if userID == "" {
		return nil, ErrInvalidInput
	}
	now := lc.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}
	deviceHash := lc.DeviceFingerprint
	if deviceHash == "" && lc.UserAgent != "" {
		deviceHash = security.GenerateDeviceFingerprint(lc.UserAgent)
	}

	var originScore, deviceScore, fingerprintScore, timeScore, rateScore float64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		originScore = s.origin.Score(gctx, userID, lc.IPAddress, now)
		return nil
	})
	g.Go(func() error {
		deviceScore = s.device.Score(gctx, userID, deviceHash, lc.UserAgent, now)
		return nil
	})
	g.Go(func() error {
		fingerprintScore = s.library.VerifyFingerprint(gctx, userID, lc.LibraryFingerprint)
		return nil
	})
	g.Go(func() error {
		timeScore = s.timePattern.Score(gctx, userID, now)
		return nil
	})
	g.Go(func() error {
		rateScore = s.rate.Score(gctx, userID)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	composite := originScore*weightOrigin +
		deviceScore*weightDevice +
		fingerprintScore*weightFingerprint +
		timeScore*weightTimePattern +
		rateScore*weightRequestRate

	result := &models.TrustResult{
		TrustScore: round3(composite),
		Factors: map[string]float64{
			models.FactorOrigin:      originScore,
			models.FactorDevice:      deviceScore,
			models.FactorFingerprint: fingerprintScore,
			models.FactorTimePattern: timeScore,
			models.FactorRequestRate: rateScore,
		},
	}
	result.RiskLevel, result.Action = classify(result.TrustScore)

	util.Info("trust evaluated",
		util.String("user_id", userID),
		util.Float64("trust_score", result.TrustScore),
		util.String("risk_level", result.RiskLevel),
		util.String("action", result.Action))
	return result, nil
}

// classify maps a composite score onto a risk level and gating action.
func classify(score float64) (riskLevel, action string) {
	switch {
	case score >= 0.80:
		return models.RiskLow, models.ActionAllow
	case score >= 0.60:
		return models.RiskMedium, models.ActionMonitor
	case score >= 0.40:
		return models.RiskElevated, models.ActionRequireMFA
	default:
		return models.RiskHigh, models.ActionBlock
	}
}
