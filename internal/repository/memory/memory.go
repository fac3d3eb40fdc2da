// Package memory provides map-backed implementations of the repository
// interfaces for tests and cluster-less development. All stores are
// safe for concurrent use.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"trust-engine/internal/models"
	"trust-engine/internal/repository"
)

// NewStores returns a full set of in-memory stores.
func NewStores() *repository.Stores {
	return &repository.Stores{
		Events:      NewEventStore(),
		Interests:   NewInterestStore(),
		IPHistory:   NewIPHistoryStore(),
		Devices:     NewDeviceStore(),
		Patterns:    NewLoginPatternStore(),
		APIActivity: NewAPIActivityStore(),
		Versions:    NewVersionStore(),
		Recovery:    NewRecoveryStore(),
	}
}

type EventStore struct {
	mu     sync.RWMutex
	events map[string][]*models.ActivityEvent
}

func NewEventStore() *EventStore {
	return &EventStore{events: make(map[string][]*models.ActivityEvent)}
}

func (s *EventStore) Append(_ context.Context, event *models.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *event
	if clone.EventID == "" {
		clone.EventID = uuid.New().String()
	}
	if clone.OccurredAt.IsZero() {
		clone.OccurredAt = time.Now().UTC()
	}
	s.events[event.UserID] = append(s.events[event.UserID], &clone)
	return nil
}

func (s *EventStore) ListByUser(_ context.Context, userID string) ([]*models.ActivityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.events[userID]
	out := make([]*models.ActivityEvent, len(stored))
	for i, e := range stored {
		clone := *e
		out[i] = &clone
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	return out, nil
}

func (s *EventStore) DeleteByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, userID)
	return nil
}

type InterestStore struct {
	mu      sync.RWMutex
	records map[string]map[string]*models.InterestRecord
}

func NewInterestStore() *InterestStore {
	return &InterestStore{records: make(map[string]map[string]*models.InterestRecord)}
}

func (s *InterestStore) Get(_ context.Context, userID, symbol string) (*models.InterestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[userID][symbol]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *InterestStore) Upsert(_ context.Context, record *models.InterestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records[record.UserID] == nil {
		s.records[record.UserID] = make(map[string]*models.InterestRecord)
	}
	clone := *record
	s.records[record.UserID][record.Symbol] = &clone
	return nil
}

func (s *InterestStore) ListByUser(_ context.Context, userID string) ([]*models.InterestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.InterestRecord, 0, len(s.records[userID]))
	for _, record := range s.records[userID] {
		clone := *record
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *InterestStore) CountByUser(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[userID]), nil
}

func (s *InterestStore) Delete(_ context.Context, userID, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records[userID], symbol)
	return nil
}

func (s *InterestStore) DeleteByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID)
	return nil
}

type IPHistoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]*models.IPHistoryRecord
}

func NewIPHistoryStore() *IPHistoryStore {
	return &IPHistoryStore{records: make(map[string]map[string]*models.IPHistoryRecord)}
}

func (s *IPHistoryStore) Get(_ context.Context, userID, ipAddress string) (*models.IPHistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[userID][ipAddress]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *IPHistoryStore) Upsert(_ context.Context, record *models.IPHistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records[record.UserID] == nil {
		s.records[record.UserID] = make(map[string]*models.IPHistoryRecord)
	}
	clone := *record
	s.records[record.UserID][record.IPAddress] = &clone
	return nil
}

func (s *IPHistoryStore) ListByUser(_ context.Context, userID string) ([]*models.IPHistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.IPHistoryRecord, 0, len(s.records[userID]))
	for _, record := range s.records[userID] {
		clone := *record
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out, nil
}

func (s *IPHistoryStore) DeleteByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID)
	return nil
}

type DeviceStore struct {
	mu      sync.RWMutex
	records map[string]map[string]*models.DeviceRecord
}

func NewDeviceStore() *DeviceStore {
	return &DeviceStore{records: make(map[string]map[string]*models.DeviceRecord)}
}

func (s *DeviceStore) Get(_ context.Context, userID, fingerprintHash string) (*models.DeviceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[userID][fingerprintHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *DeviceStore) Upsert(_ context.Context, record *models.DeviceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records[record.UserID] == nil {
		s.records[record.UserID] = make(map[string]*models.DeviceRecord)
	}
	clone := *record
	s.records[record.UserID][record.FingerprintHash] = &clone
	return nil
}

func (s *DeviceStore) ListByUser(_ context.Context, userID string) ([]*models.DeviceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.DeviceRecord, 0, len(s.records[userID]))
	for _, record := range s.records[userID] {
		clone := *record
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastLogin.After(out[j].LastLogin)
	})
	return out, nil
}

func (s *DeviceStore) DeleteByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID)
	return nil
}

type LoginPatternStore struct {
	mu       sync.RWMutex
	patterns map[string]*models.LoginTimePattern
}

func NewLoginPatternStore() *LoginPatternStore {
	return &LoginPatternStore{patterns: make(map[string]*models.LoginTimePattern)}
}

func (s *LoginPatternStore) Get(_ context.Context, userID string) (*models.LoginTimePattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pattern, ok := s.patterns[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *pattern
	clone.HourHistogram = copyHistogram(pattern.HourHistogram)
	clone.WeekdayHistogram = copyHistogram(pattern.WeekdayHistogram)
	clone.PeakHours = append([]int(nil), pattern.PeakHours...)
	return &clone, nil
}

func (s *LoginPatternStore) Upsert(_ context.Context, pattern *models.LoginTimePattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *pattern
	clone.HourHistogram = copyHistogram(pattern.HourHistogram)
	clone.WeekdayHistogram = copyHistogram(pattern.WeekdayHistogram)
	clone.PeakHours = append([]int(nil), pattern.PeakHours...)
	s.patterns[pattern.UserID] = &clone
	return nil
}

func (s *LoginPatternStore) DeleteByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.patterns, userID)
	return nil
}

func copyHistogram(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type APIActivityStore struct {
	mu      sync.RWMutex
	records map[string]*models.APIActivityRecord
}

func NewAPIActivityStore() *APIActivityStore {
	return &APIActivityStore{records: make(map[string]*models.APIActivityRecord)}
}

func (s *APIActivityStore) Get(_ context.Context, userID string) (*models.APIActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *APIActivityStore) Upsert(_ context.Context, record *models.APIActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *record
	s.records[record.UserID] = &clone
	return nil
}

func (s *APIActivityStore) DeleteByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID)
	return nil
}

type VersionStore struct {
	mu       sync.RWMutex
	versions map[string][]*models.LibraryVersion
}

func NewVersionStore() *VersionStore {
	return &VersionStore{versions: make(map[string][]*models.LibraryVersion)}
}

func (s *VersionStore) Save(_ context.Context, version *models.LibraryVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *version
	s.versions[version.UserID] = append(s.versions[version.UserID], &clone)
	return nil
}

func (s *VersionStore) ListByUser(_ context.Context, userID string) ([]*models.LibraryVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Most recent first. The version counter tracks item count, not
	// time, so ordering must come from GeneratedAt; ties fall back to
	// insertion order, newest first.
	stored := s.versions[userID]
	out := make([]*models.LibraryVersion, len(stored))
	for i, v := range stored {
		clone := *v
		out[len(stored)-1-i] = &clone
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].GeneratedAt.After(out[j].GeneratedAt) })
	return out, nil
}

func (s *VersionStore) DeleteByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.versions, userID)
	return nil
}

type RecoveryStore struct {
	mu        sync.RWMutex
	artifacts map[string]*models.RecoveryArtifact
}

func NewRecoveryStore() *RecoveryStore {
	return &RecoveryStore{artifacts: make(map[string]*models.RecoveryArtifact)}
}

func (s *RecoveryStore) Save(_ context.Context, artifact *models.RecoveryArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *artifact
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	s.artifacts[artifact.UserID] = &clone
	return nil
}

func (s *RecoveryStore) Get(_ context.Context, userID string) (*models.RecoveryArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	artifact, ok := s.artifacts[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *artifact
	return &clone, nil
}

func (s *RecoveryStore) DeleteByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.artifacts, userID)
	return nil
}
