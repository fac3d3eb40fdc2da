package models

import "time"

// InterestRecord is the aggregated engagement score for one
// (user, symbol) pair. Score is bounded to [0, 1] and never decreases
// except by erasure; pinned records are exempt from pruning.
type InterestRecord struct {
	UserID          string    `json:"user_id" db:"user_id"`
	Symbol          string    `json:"symbol" db:"symbol"`
	AssetType       string    `json:"asset_type" db:"asset_type"`
	Score           float64   `json:"score" db:"score"`
	ActivityCount   int64     `json:"activity_count" db:"activity_count"`
	IsPinned        bool      `json:"is_pinned" db:"is_pinned"`
	PortfolioValue  *float64  `json:"portfolio_value,omitempty" db:"portfolio_value"`
	FirstSeen       time.Time `json:"first_seen" db:"first_seen"`
	LastInteraction time.Time `json:"last_interaction" db:"last_interaction"`
}
