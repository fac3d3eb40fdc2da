package service

import (
	"context"
	"encoding/json"
	"fmt"

	"trust-engine/internal/client"
	"trust-engine/internal/models"
)

const activityInsertQuery = `INSERT INTO activity_events
	(event_id, user_id, symbol, asset_type, action_type, metadata, occurred_at)`

// ClickHouseActivitySink copies tracked events into ClickHouse for
// offline analytics. Losing a row here never fails an ingest.
type ClickHouseActivitySink struct {
	ch *client.ClickHouseClient
}

func NewClickHouseActivitySink(ch *client.ClickHouseClient) *ClickHouseActivitySink {
	return &ClickHouseActivitySink{ch: ch}
}

func (s *ClickHouseActivitySink) InsertActivity(ctx context.Context, event *models.ActivityEvent) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}
	row := []interface{}{
		event.EventID,
		event.UserID,
		event.Symbol,
		event.AssetType,
		event.ActionType,
		string(metadata),
		event.OccurredAt,
	}
	return s.ch.BatchInsert(ctx, activityInsertQuery, [][]interface{}{row})
}

// ESSnapshotAuditor indexes snapshot versions into Elasticsearch so the
// fingerprint history is searchable outside the primary store.
type ESSnapshotAuditor struct {
	es *client.ESClient
}

func NewESSnapshotAuditor(es *client.ESClient) *ESSnapshotAuditor {
	return &ESSnapshotAuditor{es: es}
}

func (a *ESSnapshotAuditor) IndexVersion(_ context.Context, version *models.LibraryVersion) error {
	docID := fmt.Sprintf("%s-%d-%d", version.UserID, version.Version, version.GeneratedAt.Unix())
	res, err := a.es.IndexDocument(a.es.SnapshotIndex(), docID, version)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index snapshot version: %s", res.Status())
	}
	return nil
}
