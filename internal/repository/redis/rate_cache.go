package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"trust-engine/internal/client"
	"trust-engine/internal/util"
)

const (
	apiRatePrefix     = "api_rate:"
	failedLoginPrefix = "failed_login:"
)

// RequestCounts is a point-in-time view of a user's request volume.
type RequestCounts struct {
	LastMinute int64
	LastHour   int64
	LastDay    int64
}

// RateCache keeps the real-time per-user request counters that feed the
// request-rate scorer. Counters live in rolling windows and expire on
// their own.
type RateCache struct {
	client *client.RedisClient
}

func NewRateCache(client *client.RedisClient) *RateCache {
	return &RateCache{client: client}
}

// RecordRequest bumps the minute, hour and day counters for a user and
// returns the updated counts.
func (c *RateCache) RecordRequest(ctx context.Context, userID string) (*RequestCounts, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	minute, err := c.client.IncrWithExpire(ctx, c.key(userID, "minute"), time.Minute)
	if err != nil {
		return nil, fmt.Errorf("failed to record request: %w", err)
	}
	hour, err := c.client.IncrWithExpire(ctx, c.key(userID, "hour"), time.Hour)
	if err != nil {
		return nil, fmt.Errorf("failed to record request: %w", err)
	}
	day, err := c.client.IncrWithExpire(ctx, c.key(userID, "day"), 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("failed to record request: %w", err)
	}

	return &RequestCounts{LastMinute: minute, LastHour: hour, LastDay: day}, nil
}

// Counts returns current counter values without incrementing. Missing
// counters read as zero.
func (c *RateCache) Counts(ctx context.Context, userID string) (*RequestCounts, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	counts := &RequestCounts{}
	windows := []struct {
		window string
		dest   *int64
	}{
		{"minute", &counts.LastMinute},
		{"hour", &counts.LastHour},
		{"day", &counts.LastDay},
	}

	for _, w := range windows {
		count, err := c.getCounter(ctx, c.key(userID, w.window))
		if err != nil {
			return nil, err
		}
		*w.dest = count
	}

	return counts, nil
}

// RecordCounts increments the rolling counters and returns their new
// values, satisfying the ingest-facing recorder interface.
func (c *RateCache) RecordCounts(ctx context.Context, userID string) (minute, hour, day int64, err error) {
	counts, err := c.RecordRequest(ctx, userID)
	if err != nil {
		return 0, 0, 0, err
	}
	return counts.LastMinute, counts.LastHour, counts.LastDay, nil
}

// RequestRates returns the minute and hour counters, satisfying the
// scorer-facing counter interface.
func (c *RateCache) RequestRates(ctx context.Context, userID string) (minute, hour int64, err error) {
	counts, err := c.Counts(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	return counts.LastMinute, counts.LastHour, nil
}

// RecordFailedLogin bumps the rolling failed-login counters.
func (c *RateCache) RecordFailedLogin(ctx context.Context, userID string) (hour, day int64, err error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	hour, err = c.client.IncrWithExpire(ctx, failedLoginPrefix+userID+":hour", time.Hour)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to record failed login: %w", err)
	}
	day, err = c.client.IncrWithExpire(ctx, failedLoginPrefix+userID+":day", 24*time.Hour)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to record failed login: %w", err)
	}

	return hour, day, nil
}

// FailedLogins returns the current failed-login counts.
func (c *RateCache) FailedLogins(ctx context.Context, userID string) (hour, day int64, err error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	hour, err = c.getCounter(ctx, failedLoginPrefix+userID+":hour")
	if err != nil {
		return 0, 0, err
	}
	day, err = c.getCounter(ctx, failedLoginPrefix+userID+":day")
	if err != nil {
		return 0, 0, err
	}
	return hour, day, nil
}

// Reset drops every counter for a user. Called during erasure.
func (c *RateCache) Reset(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	keys := []string{
		c.key(userID, "minute"),
		c.key(userID, "hour"),
		c.key(userID, "day"),
		failedLoginPrefix + userID + ":hour",
		failedLoginPrefix + userID + ":day",
	}

	if err := c.client.Del(ctx, keys...); err != nil {
		util.Error("Failed to reset rate counters",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to reset rate counters: %w", err)
	}

	return nil
}

func (c *RateCache) key(userID, window string) string {
	return apiRatePrefix + userID + ":" + window
}

func (c *RateCache) getCounter(ctx context.Context, key string) (int64, error) {
	countStr, err := c.client.Get(ctx, key)
	if err != nil {
		if err.Error() == fmt.Sprintf("key not found: %s", key) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get counter: %w", err)
	}

	count, err := strconv.ParseInt(countStr, 10, 64)
	if err != nil {
		util.Error("Invalid counter format",
			zap.String("key", key),
			zap.String("count_str", countStr),
			zap.Error(err))
		return 0, fmt.Errorf("invalid counter format: %w", err)
	}

	return count, nil
}
