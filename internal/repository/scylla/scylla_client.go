package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"trust-engine/internal/config"
	"trust-engine/internal/util"
)

// Statements holds the CQL text used by the repositories. Queries are
// built per call; gocql prepares and caches each statement per node on
// first execution.
type Statements struct {
	InsertEvent           string
	ListEventsByUser      string
	DeleteEventsByUser    string

	GetInterest           string
	UpsertInterest        string
	ListInterestsByUser   string
	CountInterestsByUser  string
	DeleteInterest        string
	DeleteInterestsByUser string

	GetIPHistory          string
	UpsertIPHistory       string
	ListIPHistoryByUser   string
	DeleteIPHistory       string

	GetDevice             string
	UpsertDevice          string
	ListDevicesByUser     string
	DeleteDevices         string

	GetLoginPattern       string
	UpsertLoginPattern    string
	DeleteLoginPattern    string

	GetAPIActivity        string
	UpsertAPIActivity     string
	DeleteAPIActivity     string

	InsertVersion         string
	ListVersionsByUser    string
	DeleteVersions        string

	SaveRecovery          string
	GetRecovery           string
	DeleteRecovery        string
}

type ScyllaClient struct {
	Session    *gocql.Session
	config     *config.ScyllaConfig
	Stmts      *Statements
	stmtMutex  sync.RWMutex
	registered bool
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.MaxRoutingKeyInfo = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	client.registerStatements()

	util.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) registerStatements() {
	s.stmtMutex.Lock()
	defer s.stmtMutex.Unlock()

	if s.registered {
		return
	}

	stmts := &Statements{}

	stmts.InsertEvent = `
        INSERT INTO activity_events (
            user_bucket, user_id, occurred_at, event_id,
            symbol, asset_type, action_type, metadata
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	stmts.ListEventsByUser = `
        SELECT occurred_at, event_id, symbol, asset_type, action_type, metadata
        FROM activity_events WHERE user_bucket = ? AND user_id = ?`

	stmts.DeleteEventsByUser = `
        DELETE FROM activity_events WHERE user_bucket = ? AND user_id = ?`

	stmts.GetInterest = `
        SELECT asset_type, score, activity_count, is_pinned, portfolio_value,
            first_seen, last_interaction
        FROM user_interests WHERE user_bucket = ? AND user_id = ? AND symbol = ?`

	stmts.UpsertInterest = `
        INSERT INTO user_interests (
            user_bucket, user_id, symbol, asset_type, score, activity_count,
            is_pinned, portfolio_value, first_seen, last_interaction
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmts.ListInterestsByUser = `
        SELECT symbol, asset_type, score, activity_count, is_pinned,
            portfolio_value, first_seen, last_interaction
        FROM user_interests WHERE user_bucket = ? AND user_id = ?`

	stmts.CountInterestsByUser = `
        SELECT COUNT(*) FROM user_interests WHERE user_bucket = ? AND user_id = ?`

	stmts.DeleteInterest = `
        DELETE FROM user_interests WHERE user_bucket = ? AND user_id = ? AND symbol = ?`

	stmts.DeleteInterestsByUser = `
        DELETE FROM user_interests WHERE user_bucket = ? AND user_id = ?`

	stmts.GetIPHistory = `
        SELECT country_code, country_name, city, latitude, longitude, has_coords,
            is_vpn, is_proxy, first_seen, last_seen, login_count
        FROM user_ip_history WHERE user_bucket = ? AND user_id = ? AND ip_address = ?`

	stmts.UpsertIPHistory = `
        INSERT INTO user_ip_history (
            user_bucket, user_id, ip_address, country_code, country_name, city,
            latitude, longitude, has_coords, is_vpn, is_proxy,
            first_seen, last_seen, login_count
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmts.ListIPHistoryByUser = `
        SELECT ip_address, country_code, country_name, city, latitude, longitude,
            has_coords, is_vpn, is_proxy, first_seen, last_seen, login_count
        FROM user_ip_history WHERE user_bucket = ? AND user_id = ?`

	stmts.DeleteIPHistory = `
        DELETE FROM user_ip_history WHERE user_bucket = ? AND user_id = ?`

	stmts.GetDevice = `
        SELECT user_agent, browser, browser_version, os, device_type, is_trusted,
            first_seen, last_login, login_count
        FROM user_devices WHERE user_bucket = ? AND user_id = ? AND fingerprint_hash = ?`

	stmts.UpsertDevice = `
        INSERT INTO user_devices (
            user_bucket, user_id, fingerprint_hash, user_agent, browser,
            browser_version, os, device_type, is_trusted,
            first_seen, last_login, login_count
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmts.ListDevicesByUser = `
        SELECT fingerprint_hash, user_agent, browser, browser_version, os,
            device_type, is_trusted, first_seen, last_login, login_count
        FROM user_devices WHERE user_bucket = ? AND user_id = ?`

	stmts.DeleteDevices = `
        DELETE FROM user_devices WHERE user_bucket = ? AND user_id = ?`

	stmts.GetLoginPattern = `
        SELECT hour_histogram, weekday_histogram, peak_hours, total_logins, updated_at
        FROM user_login_patterns WHERE user_bucket = ? AND user_id = ?`

	stmts.UpsertLoginPattern = `
        INSERT INTO user_login_patterns (
            user_bucket, user_id, hour_histogram, weekday_histogram,
            peak_hours, total_logins, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`

	stmts.DeleteLoginPattern = `
        DELETE FROM user_login_patterns WHERE user_bucket = ? AND user_id = ?`

	stmts.GetAPIActivity = `
        SELECT requests_last_minute, requests_last_hour, requests_last_day,
            failed_logins_last_hour, failed_logins_last_day, last_failed_login,
            rapid_requests_detected, last_request, last_activity_reset
        FROM user_api_activity WHERE user_bucket = ? AND user_id = ?`

	stmts.UpsertAPIActivity = `
        INSERT INTO user_api_activity (
            user_bucket, user_id, requests_last_minute, requests_last_hour,
            requests_last_day, failed_logins_last_hour, failed_logins_last_day,
            last_failed_login, rapid_requests_detected, last_request,
            last_activity_reset
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmts.DeleteAPIActivity = `
        DELETE FROM user_api_activity WHERE user_bucket = ? AND user_id = ?`

	stmts.InsertVersion = `
        INSERT INTO library_versions (
            user_bucket, user_id, version, fingerprint, item_count,
            pinned_count, total_score, generated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	stmts.ListVersionsByUser = `
        SELECT version, fingerprint, item_count, pinned_count, total_score, generated_at
        FROM library_versions WHERE user_bucket = ? AND user_id = ?`

	stmts.DeleteVersions = `
        DELETE FROM library_versions WHERE user_bucket = ? AND user_id = ?`

	stmts.SaveRecovery = `
        INSERT INTO recovery_artifacts (
            user_bucket, user_id, code_hash, code_salt, pepper_version,
            bundle_encrypted, bundle_dek, key_id, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmts.GetRecovery = `
        SELECT code_hash, code_salt, pepper_version, bundle_encrypted,
            bundle_dek, key_id, created_at
        FROM recovery_artifacts WHERE user_bucket = ? AND user_id = ?`

	stmts.DeleteRecovery = `
        DELETE FROM recovery_artifacts WHERE user_bucket = ? AND user_id = ?`

	s.Stmts = stmts
	s.registered = true

	util.Info("ScyllaDB statements registered")
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

// Query builds a fresh query for a statement. gocql.Query values are
// not safe for concurrent use, so callers never share them; the driver
// caches the prepared form per node.
func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
