package models

import "time"

// MaxLibrarySize caps a user's ranked interest library.
const MaxLibrarySize = 50

// PinnedPriorityBoost is added to a pinned record's score before ranking
// so every pinned item outranks every non-pinned item.
const PinnedPriorityBoost = 100.0

// Library tiers.
const (
	TierPinned      = 1
	TierCore        = 2
	TierExploration = 3
)

// LibraryItem is one ranked entry of a snapshot.
type LibraryItem struct {
	Symbol          string    `json:"symbol"`
	AssetType       string    `json:"asset_type"`
	Score           float64   `json:"score"`
	Tier            int       `json:"tier"`
	Rank            int       `json:"rank"`
	IsPinned        bool      `json:"is_pinned"`
	LastInteraction time.Time `json:"last_interaction"`
}

// LibrarySnapshot is a derived, point-in-time view of a user's interest
// library: ranked, tiered, capped, and fingerprinted.
type LibrarySnapshot struct {
	Version     int           `json:"version"`
	GeneratedAt time.Time     `json:"generated_at"`
	TotalItems  int           `json:"total_items"`
	PinnedCount int           `json:"pinned_count"`
	Fingerprint string        `json:"fingerprint"`
	Items       []LibraryItem `json:"library"`
}

// LibraryVersion is one audit row of snapshot history.
type LibraryVersion struct {
	UserID      string    `json:"user_id" db:"user_id"`
	Version     int       `json:"version" db:"version"`
	Fingerprint string    `json:"fingerprint" db:"fingerprint"`
	ItemCount   int       `json:"item_count" db:"item_count"`
	PinnedCount int       `json:"pinned_count" db:"pinned_count"`
	TotalScore  float64   `json:"total_score" db:"total_score"`
	GeneratedAt time.Time `json:"generated_at" db:"generated_at"`
}
