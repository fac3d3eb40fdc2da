package scylla

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trust-engine/internal/bucketing"
	"trust-engine/internal/models"
	"trust-engine/internal/util"
)

// EventRepository persists raw activity events. The table is append-only
// and partitioned by (user_bucket, user_id) with newest events first.
type EventRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
}

func NewEventRepository(client *ScyllaClient, buckets *bucketing.Manager) *EventRepository {
	return &EventRepository{
		client:  client,
		buckets: buckets,
	}
}

func (r *EventRepository) Append(ctx context.Context, event *models.ActivityEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	event.EventBucket = r.buckets.UserBucket(event.UserID)

	metaJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode event metadata: %w", err)
	}

	query := r.client.Query(r.client.Stmts.InsertEvent,
		event.EventBucket, event.UserID, event.OccurredAt, event.EventID,
		event.Symbol, event.AssetType, event.ActionType, string(metaJSON)).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to append activity event",
			zap.String("user_id", event.UserID),
			zap.String("symbol", event.Symbol),
			zap.Error(err))
		return fmt.Errorf("failed to append activity event: %w", err)
	}

	return nil
}

func (r *EventRepository) ListByUser(ctx context.Context, userID string) ([]*models.ActivityEvent, error) {
	bucket := r.buckets.UserBucket(userID)

	iter := r.client.Query(r.client.Stmts.ListEventsByUser, bucket, userID).WithContext(ctx).Iter()

	var events []*models.ActivityEvent
	var occurredAt time.Time
	var eventID, symbol, assetType, actionType, metaJSON string

	for iter.Scan(&occurredAt, &eventID, &symbol, &assetType, &actionType, &metaJSON) {
		event := &models.ActivityEvent{
			EventBucket: bucket,
			EventID:     eventID,
			UserID:      userID,
			Symbol:      symbol,
			AssetType:   assetType,
			ActionType:  actionType,
			OccurredAt:  occurredAt,
		}
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &event.Metadata); err != nil {
				util.Warn("Skipping undecodable event metadata",
					zap.String("user_id", userID),
					zap.String("event_id", eventID),
					zap.Error(err))
			}
		}
		events = append(events, event)
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to list activity events",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list activity events: %w", err)
	}

	return events, nil
}

func (r *EventRepository) DeleteByUser(ctx context.Context, userID string) error {
	bucket := r.buckets.UserBucket(userID)

	query := r.client.Query(r.client.Stmts.DeleteEventsByUser, bucket, userID).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to delete activity events",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to delete activity events: %w", err)
	}

	return nil
}
