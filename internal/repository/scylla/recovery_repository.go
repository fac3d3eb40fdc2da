package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"trust-engine/internal/bucketing"
	"trust-engine/internal/models"
	"trust-engine/internal/repository"
	"trust-engine/internal/util"
)

// RecoveryRepository persists recovery artifacts. Only the salted hash
// and the encrypted bundle hit disk.
type RecoveryRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
}

func NewRecoveryRepository(client *ScyllaClient, buckets *bucketing.Manager) *RecoveryRepository {
	return &RecoveryRepository{client: client, buckets: buckets}
}

func (r *RecoveryRepository) Save(ctx context.Context, artifact *models.RecoveryArtifact) error {
	bucket := r.buckets.UserBucket(artifact.UserID)

	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}

	query := r.client.Query(r.client.Stmts.SaveRecovery,
		bucket, artifact.UserID, artifact.CodeHash, artifact.CodeSalt,
		artifact.PepperVersion, artifact.BundleEncrypted, artifact.BundleDEK,
		artifact.KeyID, artifact.CreatedAt).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to save recovery artifact",
			zap.String("user_id", artifact.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to save recovery artifact: %w", err)
	}

	return nil
}

func (r *RecoveryRepository) Get(ctx context.Context, userID string) (*models.RecoveryArtifact, error) {
	bucket := r.buckets.UserBucket(userID)

	artifact := &models.RecoveryArtifact{UserID: userID}
	query := r.client.Query(r.client.Stmts.GetRecovery, bucket, userID).WithContext(ctx)
	err := r.client.ScanWithRetry(query,
		&artifact.CodeHash, &artifact.CodeSalt, &artifact.PepperVersion,
		&artifact.BundleEncrypted, &artifact.BundleDEK, &artifact.KeyID,
		&artifact.CreatedAt)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, repository.ErrNotFound
		}
		util.Error("Failed to get recovery artifact",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get recovery artifact: %w", err)
	}

	return artifact, nil
}

func (r *RecoveryRepository) DeleteByUser(ctx context.Context, userID string) error {
	bucket := r.buckets.UserBucket(userID)

	query := r.client.Query(r.client.Stmts.DeleteRecovery, bucket, userID).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		return fmt.Errorf("failed to delete recovery artifact: %w", err)
	}
	return nil
}
