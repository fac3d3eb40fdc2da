package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"trust-engine/internal/models"
	"trust-engine/internal/repository"
	"trust-engine/internal/security"
	"trust-engine/internal/util"
)

var (
	ErrInvalidInput = errors.New("invalid input")
)

// scorePerWeightUnit converts an action weight into score growth. A
// trade (weight 10) moves a fresh symbol halfway to the cap in one hit.
const scorePerWeightUnit = 0.05

// peakHourThreshold is the login count at which an hour counts as part
// of the user's routine.
const peakHourThreshold = 10

// rapidRequestThreshold marks a user as bursting when their per-minute
// request count crosses it.
const rapidRequestThreshold = 30

// AnalyticsSink receives a copy of every tracked event for offline
// analytics. The ClickHouse-backed implementation lives alongside the
// service factory; a nil sink disables the copy.
type AnalyticsSink interface {
	InsertActivity(ctx context.Context, event *models.ActivityEvent) error
}

// RateTracker is the realtime counter surface behind request and
// failed-login accounting. The Redis-backed implementation lives in
// repository/redis; a nil tracker falls back to the persisted record.
type RateTracker interface {
	RequestRates(ctx context.Context, userID string) (minute, hour int64, err error)
	RecordFailedLogin(ctx context.Context, userID string) (hour, day int64, err error)
	Reset(ctx context.Context, userID string) error
}

// RequestRecorder extends RateTracker on implementations that can also
// bump the rolling request counters.
type RequestRecorder interface {
	RecordCounts(ctx context.Context, userID string) (minute, hour, day int64, err error)
}

// ActivityService ingests raw activity and keeps every behavioral
// profile current: interest scores, origin history, device history,
// login-time histograms, and request accounting.
type ActivityService struct {
	stores    *repository.Stores
	locks     *util.KeyedMutex
	geo       security.Geolocator
	notifier  Notifier
	analytics AnalyticsSink
	rates     RateTracker
}

// Notifier is the outbound event surface; the Kafka-backed
// implementation lives in internal/notify.
type Notifier interface {
	PublishActivity(ctx context.Context, event *models.ActivityEvent) error
	NotifyRemoval(ctx context.Context, notice *models.RemovalNotice) error
}

func NewActivityService(
	stores *repository.Stores,
	geo security.Geolocator,
	notifier Notifier,
	analytics AnalyticsSink,
	rates RateTracker,
) *ActivityService {
	return &ActivityService{
		stores:    stores,
		locks:     util.NewKeyedMutex(0),
		geo:       geo,
		notifier:  notifier,
		analytics: analytics,
		rates:     rates,
	}
}

// Track ingests one interaction: appends the event, folds it into the
// symbol's interest score, and prunes if the library overflows.
// Downstream fan-out (Kafka, analytics) is best effort and never fails
// the ingest.
func (s *ActivityService) Track(ctx context.Context, userID, symbol, assetType, action string, metadata models.Metadata) error {
	userID = util.SanitizeInput(userID)
	symbol = util.NormalizeSymbol(symbol)
	if userID == "" || symbol == "" {
		return ErrInvalidInput
	}

	now := time.Now().UTC()
	event := &models.ActivityEvent{
		UserID:     userID,
		Symbol:     symbol,
		AssetType:  assetType,
		ActionType: action,
		Metadata:   metadata,
		OccurredAt: now,
	}
	if err := s.stores.Events.Append(ctx, event); err != nil {
		return err
	}

	if err := s.applyInterest(ctx, event, now); err != nil {
		return err
	}

	if s.notifier != nil {
		if err := s.notifier.PublishActivity(ctx, event); err != nil {
			util.Warn("activity publish failed",
				util.String("user_id", userID), util.ErrorField(err))
		}
	}
	if s.analytics != nil {
		if err := s.analytics.InsertActivity(ctx, event); err != nil {
			util.Warn("analytics insert failed",
				util.String("user_id", userID), util.ErrorField(err))
		}
	}

	s.pruneIfNeeded(ctx, userID, now)
	return nil
}

// applyInterest performs the locked read-modify-write of the
// (user, symbol) interest record.
func (s *ActivityService) applyInterest(ctx context.Context, event *models.ActivityEvent, now time.Time) error {
	unlock := s.locks.Lock(event.UserID + ":" + event.Symbol)
	defer unlock()

	record, err := s.stores.Interests.Get(ctx, event.UserID, event.Symbol)
	if errors.Is(err, repository.ErrNotFound) {
		record = &models.InterestRecord{
			UserID:    event.UserID,
			Symbol:    event.Symbol,
			AssetType: event.AssetType,
			FirstSeen: now,
		}
	} else if err != nil {
		return err
	}

	weight := models.ActionWeight(event.ActionType)
	record.Score += float64(weight) * scorePerWeightUnit
	if record.Score > 1.0 {
		record.Score = 1.0
	}
	record.ActivityCount++
	record.LastInteraction = now
	if event.AssetType != "" {
		record.AssetType = event.AssetType
	}

	if event.ActionType == models.ActionTrade {
		if value, ok := event.Metadata.Number("portfolio_value"); ok && value > 0 {
			record.IsPinned = true
			record.PortfolioValue = &value
		}
	}

	return s.stores.Interests.Upsert(ctx, record)
}

// pruneIfNeeded evicts the weakest non-pinned interest once the library
// exceeds its cap. Pinned records are never evicted, even when they
// alone overflow the cap.
func (s *ActivityService) pruneIfNeeded(ctx context.Context, userID string, now time.Time) {
	unlock := s.locks.Lock("prune:" + userID)
	defer unlock()

	count, err := s.stores.Interests.CountByUser(ctx, userID)
	if err != nil {
		util.Warn("prune count failed", util.String("user_id", userID), util.ErrorField(err))
		return
	}
	if count <= models.MaxLibrarySize {
		return
	}

	records, err := s.stores.Interests.ListByUser(ctx, userID)
	if err != nil {
		util.Warn("prune list failed", util.String("user_id", userID), util.ErrorField(err))
		return
	}

	var victim *models.InterestRecord
	for _, rec := range records {
		if rec.IsPinned {
			continue
		}
		if victim == nil ||
			rec.Score < victim.Score ||
			(rec.Score == victim.Score && rec.LastInteraction.Before(victim.LastInteraction)) {
			victim = rec
		}
	}
	if victim == nil {
		util.Warn("library over cap with only pinned interests, skipping prune",
			util.String("user_id", userID), util.Int("count", count))
		return
	}

	if err := s.stores.Interests.Delete(ctx, userID, victim.Symbol); err != nil {
		util.Warn("prune delete failed",
			util.String("user_id", userID),
			util.String("symbol", victim.Symbol),
			util.ErrorField(err))
		return
	}

	notice := &models.RemovalNotice{
		UserID:        userID,
		RemovedSymbol: victim.Symbol,
		Reason:        "low_activity",
		DaysInactive:  int(now.Sub(victim.LastInteraction).Hours() / 24),
		OccurredAt:    now,
	}
	util.Info("pruned interest",
		util.String("user_id", userID),
		util.String("symbol", victim.Symbol),
		util.Int("days_inactive", notice.DaysInactive))
	if s.notifier != nil {
		if err := s.notifier.NotifyRemoval(ctx, notice); err != nil {
			util.Warn("removal notice failed",
				util.String("user_id", userID), util.ErrorField(err))
		}
	}
}

// TrackLogin records one successful login observation across the three
// security profiles: origin history, device history, and the
// login-time histogram.
func (s *ActivityService) TrackLogin(ctx context.Context, lc *models.LoginContext) error {
	userID := util.SanitizeInput(lc.UserID)
	if userID == "" {
		return ErrInvalidInput
	}
	now := lc.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if lc.IPAddress != "" {
		if err := s.trackOrigin(ctx, userID, lc.IPAddress, now); err != nil {
			return err
		}
	}
	if lc.UserAgent != "" || lc.DeviceFingerprint != "" {
		if err := s.trackDevice(ctx, userID, lc, now); err != nil {
			return err
		}
	}
	return s.trackLoginTime(ctx, userID, now)
}

func (s *ActivityService) trackOrigin(ctx context.Context, userID, ipAddress string, now time.Time) error {
	record, err := s.stores.IPHistory.Get(ctx, userID, ipAddress)
	if errors.Is(err, repository.ErrNotFound) {
		record = &models.IPHistoryRecord{
			UserID:    userID,
			IPAddress: ipAddress,
			FirstSeen: now,
		}
		if s.geo != nil {
			if geo, geoErr := s.geo.Resolve(ctx, ipAddress); geoErr == nil {
				record.CountryCode = geo.CountryCode
				record.CountryName = geo.CountryName
				record.City = geo.City
				record.Latitude = geo.Latitude
				record.Longitude = geo.Longitude
				record.HasCoords = geo.HasCoords
				record.IsVPN = geo.IsVPN
				record.IsProxy = geo.IsProxy
			}
		}
	} else if err != nil {
		return err
	}

	record.LastSeen = now
	record.LoginCount++
	return s.stores.IPHistory.Upsert(ctx, record)
}

func (s *ActivityService) trackDevice(ctx context.Context, userID string, lc *models.LoginContext, now time.Time) error {
	hash := lc.DeviceFingerprint
	if hash == "" {
		hash = security.GenerateDeviceFingerprint(lc.UserAgent)
	}

	record, err := s.stores.Devices.Get(ctx, userID, hash)
	if errors.Is(err, repository.ErrNotFound) {
		info := security.ParseUserAgent(lc.UserAgent)
		record = &models.DeviceRecord{
			UserID:          userID,
			FingerprintHash: hash,
			UserAgent:       lc.UserAgent,
			Browser:         info.Browser,
			BrowserVersion:  info.BrowserVersion,
			OS:              info.OS,
			DeviceType:      info.DeviceType,
			FirstSeen:       now,
		}
	} else if err != nil {
		return err
	}

	record.LastLogin = now
	record.LoginCount++
	return s.stores.Devices.Upsert(ctx, record)
}

func (s *ActivityService) trackLoginTime(ctx context.Context, userID string, now time.Time) error {
	unlock := s.locks.Lock("pattern:" + userID)
	defer unlock()

	pattern, err := s.stores.Patterns.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		pattern = &models.LoginTimePattern{
			UserID:           userID,
			HourHistogram:    map[string]int{},
			WeekdayHistogram: map[string]int{},
		}
	} else if err != nil {
		return err
	}
	if pattern.HourHistogram == nil {
		pattern.HourHistogram = map[string]int{}
	}
	if pattern.WeekdayHistogram == nil {
		pattern.WeekdayHistogram = map[string]int{}
	}

	hourKey := strconv.Itoa(now.Hour())
	// Histogram weekdays run Monday=0; time.Weekday runs Sunday=0.
	weekdayKey := strconv.Itoa((int(now.Weekday()) + 6) % 7)
	pattern.HourHistogram[hourKey]++
	pattern.WeekdayHistogram[weekdayKey]++
	pattern.TotalLogins++
	pattern.UpdatedAt = now

	peaks := make([]int, 0, 4)
	for hour := 0; hour < 24; hour++ {
		if pattern.HourHistogram[strconv.Itoa(hour)] >= peakHourThreshold {
			peaks = append(peaks, hour)
		}
	}
	sort.Ints(peaks)
	pattern.PeakHours = peaks

	return s.stores.Patterns.Upsert(ctx, pattern)
}

// TrackFailedLogin bumps the rolling failed-login counters and mirrors
// them into the persisted request-behavior record.
func (s *ActivityService) TrackFailedLogin(ctx context.Context, userID string) error {
	userID = util.SanitizeInput(userID)
	if userID == "" {
		return ErrInvalidInput
	}
	now := time.Now().UTC()

	var hour, day int64
	if s.rates != nil {
		var err error
		hour, day, err = s.rates.RecordFailedLogin(ctx, userID)
		if err != nil {
			util.Warn("failed-login counter unavailable",
				util.String("user_id", userID), util.ErrorField(err))
		}
	}

	record, err := s.stores.APIActivity.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		record = &models.APIActivityRecord{UserID: userID}
	} else if err != nil {
		return err
	}
	if hour > 0 {
		record.FailedLoginsLastHour = hour
	} else {
		record.FailedLoginsLastHour++
	}
	if day > 0 {
		record.FailedLoginsLastDay = day
	} else {
		record.FailedLoginsLastDay++
	}
	record.LastFailedLogin = now
	return s.stores.APIActivity.Upsert(ctx, record)
}

// TrackRequest bumps the rolling request counters and mirrors them into
// the persisted record so the rate scorer has a fallback when the
// counters are down.
func (s *ActivityService) TrackRequest(ctx context.Context, userID string) {
	userID = util.SanitizeInput(userID)
	if userID == "" {
		return
	}
	recorder, ok := s.rates.(RequestRecorder)
	if !ok || recorder == nil {
		return
	}

	minute, hour, day, err := recorder.RecordCounts(ctx, userID)
	if err != nil {
		util.Warn("request counter unavailable",
			util.String("user_id", userID), util.ErrorField(err))
		return
	}

	record, err := s.stores.APIActivity.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		record = &models.APIActivityRecord{UserID: userID}
	} else if err != nil {
		util.Warn("request record read failed",
			util.String("user_id", userID), util.ErrorField(err))
		return
	}
	record.RequestsLastMinute = minute
	record.RequestsLastHour = hour
	record.RequestsLastDay = day
	record.RapidRequests = minute > rapidRequestThreshold
	record.LastRequest = time.Now().UTC()
	if err := s.stores.APIActivity.Upsert(ctx, record); err != nil {
		util.Warn("request record write failed",
			util.String("user_id", userID), util.ErrorField(err))
	}
}

// LoginPattern returns the stored login-time profile for a user.
func (s *ActivityService) LoginPattern(ctx context.Context, userID string) (*models.LoginTimePattern, error) {
	return s.stores.Patterns.Get(ctx, userID)
}
