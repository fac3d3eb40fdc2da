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

// InterestRepository holds the aggregated (user, symbol) scores.
// portfolio_value is stored as a plain double; zero means unset.
type InterestRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
}

func NewInterestRepository(client *ScyllaClient, buckets *bucketing.Manager) *InterestRepository {
	return &InterestRepository{
		client:  client,
		buckets: buckets,
	}
}

func (r *InterestRepository) Get(ctx context.Context, userID, symbol string) (*models.InterestRecord, error) {
	bucket := r.buckets.UserBucket(userID)

	record := &models.InterestRecord{UserID: userID, Symbol: symbol}
	var portfolioValue float64

	query := r.client.Query(r.client.Stmts.GetInterest, bucket, userID, symbol).WithContext(ctx)
	err := r.client.ScanWithRetry(query,
		&record.AssetType, &record.Score, &record.ActivityCount, &record.IsPinned,
		&portfolioValue, &record.FirstSeen, &record.LastInteraction)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, repository.ErrNotFound
		}
		util.Error("Failed to get interest",
			zap.String("user_id", userID),
			zap.String("symbol", symbol),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get interest: %w", err)
	}

	if portfolioValue > 0 {
		record.PortfolioValue = &portfolioValue
	}
	return record, nil
}

func (r *InterestRepository) Upsert(ctx context.Context, record *models.InterestRecord) error {
	bucket := r.buckets.UserBucket(record.UserID)

	var portfolioValue float64
	if record.PortfolioValue != nil {
		portfolioValue = *record.PortfolioValue
	}

	query := r.client.Query(r.client.Stmts.UpsertInterest,
		bucket, record.UserID, record.Symbol, record.AssetType, record.Score,
		record.ActivityCount, record.IsPinned, portfolioValue,
		record.FirstSeen, record.LastInteraction).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to upsert interest",
			zap.String("user_id", record.UserID),
			zap.String("symbol", record.Symbol),
			zap.Error(err))
		return fmt.Errorf("failed to upsert interest: %w", err)
	}

	return nil
}

func (r *InterestRepository) ListByUser(ctx context.Context, userID string) ([]*models.InterestRecord, error) {
	bucket := r.buckets.UserBucket(userID)

	iter := r.client.Query(r.client.Stmts.ListInterestsByUser, bucket, userID).WithContext(ctx).Iter()

	var records []*models.InterestRecord
	var symbol, assetType string
	var score, portfolioValue float64
	var activityCount int64
	var isPinned bool
	var firstSeen, lastInteraction time.Time

	for iter.Scan(&symbol, &assetType, &score, &activityCount, &isPinned,
		&portfolioValue, &firstSeen, &lastInteraction) {
		record := &models.InterestRecord{
			UserID:          userID,
			Symbol:          symbol,
			AssetType:       assetType,
			Score:           score,
			ActivityCount:   activityCount,
			IsPinned:        isPinned,
			FirstSeen:       firstSeen,
			LastInteraction: lastInteraction,
		}
		if portfolioValue > 0 {
			pv := portfolioValue
			record.PortfolioValue = &pv
		}
		records = append(records, record)
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to list interests",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list interests: %w", err)
	}

	return records, nil
}

func (r *InterestRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	bucket := r.buckets.UserBucket(userID)

	var count int
	query := r.client.Query(r.client.Stmts.CountInterestsByUser, bucket, userID).WithContext(ctx)
	if err := r.client.ScanWithRetry(query, &count); err != nil {
		util.Error("Failed to count interests",
			zap.String("user_id", userID),
			zap.Error(err))
		return 0, fmt.Errorf("failed to count interests: %w", err)
	}

	return count, nil
}

func (r *InterestRepository) Delete(ctx context.Context, userID, symbol string) error {
	bucket := r.buckets.UserBucket(userID)

	query := r.client.Query(r.client.Stmts.DeleteInterest, bucket, userID, symbol).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to delete interest",
			zap.String("user_id", userID),
			zap.String("symbol", symbol),
			zap.Error(err))
		return fmt.Errorf("failed to delete interest: %w", err)
	}

	return nil
}

func (r *InterestRepository) DeleteByUser(ctx context.Context, userID string) error {
	bucket := r.buckets.UserBucket(userID)

	query := r.client.Query(r.client.Stmts.DeleteInterestsByUser, bucket, userID).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to delete interests",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to delete interests: %w", err)
	}

	return nil
}
