package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trust-engine/internal/client"
	"trust-engine/internal/util"
)

const fingerprintPrefix = "library_fp:"

// fingerprintTTL bounds staleness of the cached fingerprint; trust
// evaluation regenerates on miss.
const fingerprintTTL = 15 * time.Minute

// FingerprintCache keeps the latest library fingerprint per user so
// trust evaluation can skip a full snapshot rebuild.
type FingerprintCache struct {
	client *client.RedisClient
}

func NewFingerprintCache(client *client.RedisClient) *FingerprintCache {
	return &FingerprintCache{client: client}
}

func (c *FingerprintCache) Set(ctx context.Context, userID, fingerprint string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Set(ctx, fingerprintPrefix+userID, fingerprint, fingerprintTTL); err != nil {
		util.Error("Failed to cache fingerprint",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to cache fingerprint: %w", err)
	}
	return nil
}

// Get returns the cached fingerprint, or "" on a miss.
func (c *FingerprintCache) Get(ctx context.Context, userID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := fingerprintPrefix + userID
	fingerprint, err := c.client.Get(ctx, key)
	if err != nil {
		if err.Error() == fmt.Sprintf("key not found: %s", key) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get cached fingerprint: %w", err)
	}
	return fingerprint, nil
}

func (c *FingerprintCache) Delete(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, fingerprintPrefix+userID); err != nil {
		return fmt.Errorf("failed to delete cached fingerprint: %w", err)
	}
	return nil
}
