package scylla

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"trust-engine/internal/bucketing"
	"trust-engine/internal/models"
	"trust-engine/internal/util"
)

// VersionRepository keeps the per-user snapshot fingerprint history.
type VersionRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
}

func NewVersionRepository(client *ScyllaClient, buckets *bucketing.Manager) *VersionRepository {
	return &VersionRepository{client: client, buckets: buckets}
}

func (r *VersionRepository) Save(ctx context.Context, version *models.LibraryVersion) error {
	bucket := r.buckets.UserBucket(version.UserID)

	query := r.client.Query(r.client.Stmts.InsertVersion,
		bucket, version.UserID, version.Version, version.Fingerprint,
		version.ItemCount, version.PinnedCount, version.TotalScore,
		version.GeneratedAt).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to save library version",
			zap.String("user_id", version.UserID),
			zap.Int("version", version.Version),
			zap.Error(err))
		return fmt.Errorf("failed to save library version: %w", err)
	}

	return nil
}

func (r *VersionRepository) ListByUser(ctx context.Context, userID string) ([]*models.LibraryVersion, error) {
	bucket := r.buckets.UserBucket(userID)

	iter := r.client.Query(r.client.Stmts.ListVersionsByUser, bucket, userID).WithContext(ctx).Iter()

	var versions []*models.LibraryVersion
	version := &models.LibraryVersion{UserID: userID}

	for iter.Scan(&version.Version, &version.Fingerprint, &version.ItemCount,
		&version.PinnedCount, &version.TotalScore, &version.GeneratedAt) {
		versions = append(versions, version)
		version = &models.LibraryVersion{UserID: userID}
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to list library versions",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list library versions: %w", err)
	}

	// The version counter tracks item count, not time, so the audit
	// trail orders on GeneratedAt. The table clusters on
	// (generated_at DESC, version) for the same reason: clustering on
	// version alone would let two snapshots with equal item counts
	// overwrite each other.
	sort.Slice(versions, func(i, j int) bool {
		if !versions[i].GeneratedAt.Equal(versions[j].GeneratedAt) {
			return versions[i].GeneratedAt.After(versions[j].GeneratedAt)
		}
		return versions[i].Version > versions[j].Version
	})
	return versions, nil
}

func (r *VersionRepository) DeleteByUser(ctx context.Context, userID string) error {
	bucket := r.buckets.UserBucket(userID)

	query := r.client.Query(r.client.Stmts.DeleteVersions, bucket, userID).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		return fmt.Errorf("failed to delete library versions: %w", err)
	}
	return nil
}
