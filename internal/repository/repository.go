// Package repository defines the storage interfaces the services depend
// on. ScyllaDB-backed implementations live in repository/scylla; a
// map-backed double for tests and cluster-less development lives in
// repository/memory.
package repository

import (
	"context"
	"errors"

	"trust-engine/internal/models"
)

// ErrNotFound is returned by point reads when no record exists.
var ErrNotFound = errors.New("record not found")

// EventStore is the append-only activity log. Events are never mutated;
// DeleteByUser exists only for the erasure contract.
type EventStore interface {
	Append(ctx context.Context, event *models.ActivityEvent) error
	ListByUser(ctx context.Context, userID string) ([]*models.ActivityEvent, error)
	DeleteByUser(ctx context.Context, userID string) error
}

// InterestStore holds one mutable record per (user, symbol).
type InterestStore interface {
	Get(ctx context.Context, userID, symbol string) (*models.InterestRecord, error)
	Upsert(ctx context.Context, record *models.InterestRecord) error
	ListByUser(ctx context.Context, userID string) ([]*models.InterestRecord, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, userID, symbol string) error
	DeleteByUser(ctx context.Context, userID string) error
}

// IPHistoryStore holds origin history, keyed by (user, address).
// ListByUser returns records most recently seen first.
type IPHistoryStore interface {
	Get(ctx context.Context, userID, ipAddress string) (*models.IPHistoryRecord, error)
	Upsert(ctx context.Context, record *models.IPHistoryRecord) error
	ListByUser(ctx context.Context, userID string) ([]*models.IPHistoryRecord, error)
	DeleteByUser(ctx context.Context, userID string) error
}

// DeviceStore holds device history, keyed by (user, fingerprint hash).
// ListByUser returns records most recently used first.
type DeviceStore interface {
	Get(ctx context.Context, userID, fingerprintHash string) (*models.DeviceRecord, error)
	Upsert(ctx context.Context, record *models.DeviceRecord) error
	ListByUser(ctx context.Context, userID string) ([]*models.DeviceRecord, error)
	DeleteByUser(ctx context.Context, userID string) error
}

// LoginPatternStore holds the singleton per-user login-time histogram.
type LoginPatternStore interface {
	Get(ctx context.Context, userID string) (*models.LoginTimePattern, error)
	Upsert(ctx context.Context, pattern *models.LoginTimePattern) error
	DeleteByUser(ctx context.Context, userID string) error
}

// APIActivityStore holds the singleton per-user request-behavior record.
type APIActivityStore interface {
	Get(ctx context.Context, userID string) (*models.APIActivityRecord, error)
	Upsert(ctx context.Context, record *models.APIActivityRecord) error
	DeleteByUser(ctx context.Context, userID string) error
}

// SnapshotVersionStore keeps the fingerprint audit history.
type SnapshotVersionStore interface {
	Save(ctx context.Context, version *models.LibraryVersion) error
	ListByUser(ctx context.Context, userID string) ([]*models.LibraryVersion, error)
	DeleteByUser(ctx context.Context, userID string) error
}

// RecoveryStore persists recovery artifacts (hash + encrypted bundle
// only, never the plaintext code).
type RecoveryStore interface {
	Save(ctx context.Context, artifact *models.RecoveryArtifact) error
	Get(ctx context.Context, userID string) (*models.RecoveryArtifact, error)
	DeleteByUser(ctx context.Context, userID string) error
}

// Stores bundles every store interface; the factory hands one of these
// to the service layer.
type Stores struct {
	Events      EventStore
	Interests   InterestStore
	IPHistory   IPHistoryStore
	Devices     DeviceStore
	Patterns    LoginPatternStore
	APIActivity APIActivityStore
	Versions    SnapshotVersionStore
	Recovery    RecoveryStore
}
