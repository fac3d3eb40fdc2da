package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"trust-engine/internal/models"
	"trust-engine/internal/repository"
	"trust-engine/internal/util"
)

// emptyLibrarySeed is hashed as the fingerprint of a user with no
// interests, so an empty library still verifies deterministically.
const emptyLibrarySeed = "empty_library"

// FingerprintCache is the hot-path cache for current snapshot
// fingerprints. The Redis-backed implementation lives in
// repository/redis; a nil cache disables caching.
type FingerprintCache interface {
	Get(ctx context.Context, userID string) (string, error)
	Set(ctx context.Context, userID, fingerprint string) error
	Delete(ctx context.Context, userID string) error
}

// SnapshotAuditor receives a copy of every new snapshot version for
// out-of-band audit search. A nil auditor disables auditing.
type SnapshotAuditor interface {
	IndexVersion(ctx context.Context, version *models.LibraryVersion) error
}

// LibraryService derives ranked, fingerprinted library snapshots from
// the interest store. Snapshots are computed fresh on every call; only
// the version audit trail is persisted.
type LibraryService struct {
	interests repository.InterestStore
	versions  repository.SnapshotVersionStore
	fpCache   FingerprintCache
	auditor   SnapshotAuditor
}

func NewLibraryService(
	interests repository.InterestStore,
	versions repository.SnapshotVersionStore,
	fpCache FingerprintCache,
	auditor SnapshotAuditor,
) *LibraryService {
	return &LibraryService{
		interests: interests,
		versions:  versions,
		fpCache:   fpCache,
		auditor:   auditor,
	}
}

// GenerateSnapshot builds the current snapshot for a user: interests
// ranked with pinned records boosted above everything else, capped at
// MaxLibrarySize, tiered, and fingerprinted. A fingerprint change is
// recorded in the version history as a side effect.
func (s *LibraryService) GenerateSnapshot(ctx context.Context, userID string) (*models.LibrarySnapshot, error) {
	records, err := s.interests.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list interests: %w", err)
	}

	now := time.Now().UTC()
	if len(records) == 0 {
		return &models.LibrarySnapshot{
			Version:     1,
			GeneratedAt: now,
			TotalItems:  0,
			PinnedCount: 0,
			Fingerprint: hashFingerprint(emptyLibrarySeed),
			Items:       []models.LibraryItem{},
		}, nil
	}

	// Pinned records get a flat boost before ranking so they always
	// outrank non-pinned ones while keeping their relative order.
	sort.Slice(records, func(i, j int) bool {
		a, b := effectiveScore(records[i]), effectiveScore(records[j])
		if a != b {
			return a > b
		}
		return records[i].Symbol < records[j].Symbol
	})
	if len(records) > models.MaxLibrarySize {
		records = records[:models.MaxLibrarySize]
	}

	items := make([]models.LibraryItem, 0, len(records))
	pinnedCount := 0
	for i, rec := range records {
		tier := models.TierExploration
		switch {
		case rec.IsPinned:
			tier = models.TierPinned
			pinnedCount++
		case i < 30:
			tier = models.TierCore
		}
		items = append(items, models.LibraryItem{
			Symbol:          rec.Symbol,
			AssetType:       rec.AssetType,
			Score:           round3(rec.Score),
			Tier:            tier,
			Rank:            i + 1,
			IsPinned:        rec.IsPinned,
			LastInteraction: rec.LastInteraction,
		})
	}

	snapshot := &models.LibrarySnapshot{
		Version:     len(items) + 1,
		GeneratedAt: now,
		TotalItems:  len(items),
		PinnedCount: pinnedCount,
		Fingerprint: computeFingerprint(items, pinnedCount),
		Items:       items,
	}

	s.recordVersion(ctx, userID, snapshot)
	return snapshot, nil
}

// VerifyFingerprint scores a client-supplied fingerprint against the
// current library state. An empty or unverifiable fingerprint is
// neutral rather than hostile.
func (s *LibraryService) VerifyFingerprint(ctx context.Context, userID, clientFingerprint string) float64 {
	if clientFingerprint == "" {
		return 0.5
	}
	current, err := s.currentFingerprint(ctx, userID)
	if err != nil {
		util.Warn("fingerprint verification fell back to neutral",
			util.String("user_id", userID), util.ErrorField(err))
		return 0.5
	}
	if clientFingerprint == current {
		return 1.0
	}
	return 0.3
}

func (s *LibraryService) currentFingerprint(ctx context.Context, userID string) (string, error) {
	if s.fpCache != nil {
		if fp, err := s.fpCache.Get(ctx, userID); err == nil && fp != "" {
			return fp, nil
		}
	}
	snapshot, err := s.GenerateSnapshot(ctx, userID)
	if err != nil {
		return "", err
	}
	return snapshot.Fingerprint, nil
}

// recordVersion persists a version row when the fingerprint differs
// from the cached one. Best effort: the snapshot itself never fails on
// audit-trail errors.
func (s *LibraryService) recordVersion(ctx context.Context, userID string, snapshot *models.LibrarySnapshot) {
	previous := ""
	if s.fpCache != nil {
		if cached, err := s.fpCache.Get(ctx, userID); err == nil {
			previous = cached
		}
	}
	if previous == "" {
		if history, err := s.versions.ListByUser(ctx, userID); err == nil && len(history) > 0 {
			previous = history[0].Fingerprint
		}
	}
	if previous == snapshot.Fingerprint {
		return
	}

	totalScore := 0.0
	for _, item := range snapshot.Items {
		totalScore += item.Score
	}
	version := &models.LibraryVersion{
		UserID:      userID,
		Version:     snapshot.Version,
		Fingerprint: snapshot.Fingerprint,
		ItemCount:   snapshot.TotalItems,
		PinnedCount: snapshot.PinnedCount,
		TotalScore:  round3(totalScore),
		GeneratedAt: snapshot.GeneratedAt,
	}

	if err := s.versions.Save(ctx, version); err != nil {
		util.Warn("failed to record library version",
			util.String("user_id", userID), util.ErrorField(err))
		return
	}
	if s.auditor != nil {
		if err := s.auditor.IndexVersion(ctx, version); err != nil {
			util.Warn("failed to index library version",
				util.String("user_id", userID), util.ErrorField(err))
		}
	}
	if s.fpCache != nil {
		if err := s.fpCache.Set(ctx, userID, snapshot.Fingerprint); err != nil {
			util.Warn("failed to cache library fingerprint",
				util.String("user_id", userID), util.ErrorField(err))
		}
	}
}

// computeFingerprint hashes the canonical description of a library:
// pin count, top symbols, asset-type mix, activity intensity, and
// size. Symbols and asset types are sorted so the fingerprint is
// order-independent.
func computeFingerprint(items []models.LibraryItem, pinnedCount int) string {
	topN := len(items)
	if topN > 10 {
		topN = 10
	}
	topSymbols := make([]string, 0, topN)
	for _, item := range items[:topN] {
		topSymbols = append(topSymbols, item.Symbol)
	}
	sort.Strings(topSymbols)

	seen := make(map[string]bool)
	sectors := make([]string, 0, 4)
	for _, item := range items {
		if !seen[item.AssetType] {
			seen[item.AssetType] = true
			sectors = append(sectors, item.AssetType)
		}
	}
	sort.Strings(sectors)

	intensity := "low"
	switch {
	case len(items) > 30:
		intensity = "high"
	case len(items) > 10:
		intensity = "medium"
	}

	canonical := fmt.Sprintf("PINNED:%d\nTOP:%s\nSECTORS:%s\nINTENSITY:%s\nSIZE:%d",
		pinnedCount,
		strings.Join(topSymbols, ""),
		strings.Join(sectors, ""),
		intensity,
		len(items))
	return hashFingerprint(canonical)
}

func hashFingerprint(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

func effectiveScore(rec *models.InterestRecord) float64 {
	if rec.IsPinned {
		return rec.Score + models.PinnedPriorityBoost
	}
	return rec.Score
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
