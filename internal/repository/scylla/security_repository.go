package scylla

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"trust-engine/internal/bucketing"
	"trust-engine/internal/models"
	"trust-engine/internal/repository"
	"trust-engine/internal/util"
)

// IPHistoryRepository holds per-user origin history. Rows cluster by
// address, so recency ordering happens after the fetch.
type IPHistoryRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
}

func NewIPHistoryRepository(client *ScyllaClient, buckets *bucketing.Manager) *IPHistoryRepository {
	return &IPHistoryRepository{client: client, buckets: buckets}
}

func (r *IPHistoryRepository) Get(ctx context.Context, userID, ipAddress string) (*models.IPHistoryRecord, error) {
	bucket := r.buckets.UserBucket(userID)

	record := &models.IPHistoryRecord{UserID: userID, IPAddress: ipAddress}
	query := r.client.Query(r.client.Stmts.GetIPHistory, bucket, userID, ipAddress).WithContext(ctx)
	err := r.client.ScanWithRetry(query,
		&record.CountryCode, &record.CountryName, &record.City,
		&record.Latitude, &record.Longitude, &record.HasCoords,
		&record.IsVPN, &record.IsProxy,
		&record.FirstSeen, &record.LastSeen, &record.LoginCount)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, repository.ErrNotFound
		}
		util.Error("Failed to get IP history",
			zap.String("user_id", userID),
			zap.String("ip_address", ipAddress),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get ip history: %w", err)
	}

	return record, nil
}

func (r *IPHistoryRepository) Upsert(ctx context.Context, record *models.IPHistoryRecord) error {
	bucket := r.buckets.UserBucket(record.UserID)

	query := r.client.Query(r.client.Stmts.UpsertIPHistory,
		bucket, record.UserID, record.IPAddress, record.CountryCode,
		record.CountryName, record.City, record.Latitude, record.Longitude,
		record.HasCoords, record.IsVPN, record.IsProxy,
		record.FirstSeen, record.LastSeen, record.LoginCount).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to upsert IP history",
			zap.String("user_id", record.UserID),
			zap.String("ip_address", record.IPAddress),
			zap.Error(err))
		return fmt.Errorf("failed to upsert ip history: %w", err)
	}

	return nil
}

func (r *IPHistoryRepository) ListByUser(ctx context.Context, userID string) ([]*models.IPHistoryRecord, error) {
	bucket := r.buckets.UserBucket(userID)

	iter := r.client.Query(r.client.Stmts.ListIPHistoryByUser, bucket, userID).WithContext(ctx).Iter()

	var records []*models.IPHistoryRecord
	record := &models.IPHistoryRecord{UserID: userID}

	for iter.Scan(&record.IPAddress, &record.CountryCode, &record.CountryName,
		&record.City, &record.Latitude, &record.Longitude, &record.HasCoords,
		&record.IsVPN, &record.IsProxy,
		&record.FirstSeen, &record.LastSeen, &record.LoginCount) {
		records = append(records, record)
		record = &models.IPHistoryRecord{UserID: userID}
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to list IP history",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list ip history: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].LastSeen.After(records[j].LastSeen)
	})
	return records, nil
}

func (r *IPHistoryRepository) DeleteByUser(ctx context.Context, userID string) error {
	bucket := r.buckets.UserBucket(userID)

	query := r.client.Query(r.client.Stmts.DeleteIPHistory, bucket, userID).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		return fmt.Errorf("failed to delete ip history: %w", err)
	}
	return nil
}

// DeviceRepository holds per-user device history keyed by fingerprint
// hash.
type DeviceRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
}

func NewDeviceRepository(client *ScyllaClient, buckets *bucketing.Manager) *DeviceRepository {
	return &DeviceRepository{client: client, buckets: buckets}
}

func (r *DeviceRepository) Get(ctx context.Context, userID, fingerprintHash string) (*models.DeviceRecord, error) {
	bucket := r.buckets.UserBucket(userID)

	record := &models.DeviceRecord{UserID: userID, FingerprintHash: fingerprintHash}
	query := r.client.Query(r.client.Stmts.GetDevice, bucket, userID, fingerprintHash).WithContext(ctx)
	err := r.client.ScanWithRetry(query,
		&record.UserAgent, &record.Browser, &record.BrowserVersion,
		&record.OS, &record.DeviceType, &record.IsTrusted,
		&record.FirstSeen, &record.LastLogin, &record.LoginCount)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, repository.ErrNotFound
		}
		util.Error("Failed to get device",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	return record, nil
}

func (r *DeviceRepository) Upsert(ctx context.Context, record *models.DeviceRecord) error {
	bucket := r.buckets.UserBucket(record.UserID)

	query := r.client.Query(r.client.Stmts.UpsertDevice,
		bucket, record.UserID, record.FingerprintHash, record.UserAgent,
		record.Browser, record.BrowserVersion, record.OS, record.DeviceType,
		record.IsTrusted, record.FirstSeen, record.LastLogin,
		record.LoginCount).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to upsert device",
			zap.String("user_id", record.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert device: %w", err)
	}

	return nil
}

func (r *DeviceRepository) ListByUser(ctx context.Context, userID string) ([]*models.DeviceRecord, error) {
	bucket := r.buckets.UserBucket(userID)

	iter := r.client.Query(r.client.Stmts.ListDevicesByUser, bucket, userID).WithContext(ctx).Iter()

	var records []*models.DeviceRecord
	record := &models.DeviceRecord{UserID: userID}

	for iter.Scan(&record.FingerprintHash, &record.UserAgent, &record.Browser,
		&record.BrowserVersion, &record.OS, &record.DeviceType,
		&record.IsTrusted, &record.FirstSeen, &record.LastLogin,
		&record.LoginCount) {
		records = append(records, record)
		record = &models.DeviceRecord{UserID: userID}
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to list devices",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].LastLogin.After(records[j].LastLogin)
	})
	return records, nil
}

func (r *DeviceRepository) DeleteByUser(ctx context.Context, userID string) error {
	bucket := r.buckets.UserBucket(userID)

	query := r.client.Query(r.client.Stmts.DeleteDevices, bucket, userID).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		return fmt.Errorf("failed to delete devices: %w", err)
	}
	return nil
}

// LoginPatternRepository holds the singleton per-user login-hour
// histogram row.
type LoginPatternRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
}

func NewLoginPatternRepository(client *ScyllaClient, buckets *bucketing.Manager) *LoginPatternRepository {
	return &LoginPatternRepository{client: client, buckets: buckets}
}

func (r *LoginPatternRepository) Get(ctx context.Context, userID string) (*models.LoginTimePattern, error) {
	bucket := r.buckets.UserBucket(userID)

	pattern := &models.LoginTimePattern{UserID: userID}
	query := r.client.Query(r.client.Stmts.GetLoginPattern, bucket, userID).WithContext(ctx)
	err := r.client.ScanWithRetry(query,
		&pattern.HourHistogram, &pattern.WeekdayHistogram,
		&pattern.PeakHours, &pattern.TotalLogins, &pattern.UpdatedAt)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, repository.ErrNotFound
		}
		util.Error("Failed to get login pattern",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get login pattern: %w", err)
	}

	return pattern, nil
}

func (r *LoginPatternRepository) Upsert(ctx context.Context, pattern *models.LoginTimePattern) error {
	bucket := r.buckets.UserBucket(pattern.UserID)

	if pattern.UpdatedAt.IsZero() {
		pattern.UpdatedAt = time.Now().UTC()
	}

	query := r.client.Query(r.client.Stmts.UpsertLoginPattern,
		bucket, pattern.UserID, pattern.HourHistogram,
		pattern.WeekdayHistogram, pattern.PeakHours,
		pattern.TotalLogins, pattern.UpdatedAt).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to upsert login pattern",
			zap.String("user_id", pattern.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert login pattern: %w", err)
	}

	return nil
}

func (r *LoginPatternRepository) DeleteByUser(ctx context.Context, userID string) error {
	bucket := r.buckets.UserBucket(userID)

	query := r.client.Query(r.client.Stmts.DeleteLoginPattern, bucket, userID).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		return fmt.Errorf("failed to delete login pattern: %w", err)
	}
	return nil
}

// APIActivityRepository holds the singleton per-user request-behavior
// row backing the rate scorer's fallback path.
type APIActivityRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
}

func NewAPIActivityRepository(client *ScyllaClient, buckets *bucketing.Manager) *APIActivityRepository {
	return &APIActivityRepository{client: client, buckets: buckets}
}

func (r *APIActivityRepository) Get(ctx context.Context, userID string) (*models.APIActivityRecord, error) {
	bucket := r.buckets.UserBucket(userID)

	record := &models.APIActivityRecord{UserID: userID}
	query := r.client.Query(r.client.Stmts.GetAPIActivity, bucket, userID).WithContext(ctx)
	err := r.client.ScanWithRetry(query,
		&record.RequestsLastMinute, &record.RequestsLastHour,
		&record.RequestsLastDay, &record.FailedLoginsLastHour,
		&record.FailedLoginsLastDay, &record.LastFailedLogin,
		&record.RapidRequests, &record.LastRequest, &record.LastReset)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, repository.ErrNotFound
		}
		util.Error("Failed to get API activity",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get api activity: %w", err)
	}

	return record, nil
}

func (r *APIActivityRepository) Upsert(ctx context.Context, record *models.APIActivityRecord) error {
	bucket := r.buckets.UserBucket(record.UserID)

	query := r.client.Query(r.client.Stmts.UpsertAPIActivity,
		bucket, record.UserID, record.RequestsLastMinute,
		record.RequestsLastHour, record.RequestsLastDay,
		record.FailedLoginsLastHour, record.FailedLoginsLastDay,
		record.LastFailedLogin, record.RapidRequests,
		record.LastRequest, record.LastReset).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to upsert API activity",
			zap.String("user_id", record.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert api activity: %w", err)
	}

	return nil
}

func (r *APIActivityRepository) DeleteByUser(ctx context.Context, userID string) error {
	bucket := r.buckets.UserBucket(userID)

	query := r.client.Query(r.client.Stmts.DeleteAPIActivity, bucket, userID).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		return fmt.Errorf("failed to delete api activity: %w", err)
	}
	return nil
}
