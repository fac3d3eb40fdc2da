package models

import "time"

// RecoveryItem is one interest carried in a recovery bundle.
type RecoveryItem struct {
	Symbol string  `json:"symbol"`
	Tier   int     `json:"tier"`
	Score  float64 `json:"score"`
}

// RecoveryBundle is the library digest bundled with a recovery code.
type RecoveryBundle struct {
	GeneratedAt   time.Time      `json:"generated_at"`
	Version       int            `json:"version"`
	Fingerprint   string         `json:"fingerprint"`
	TotalItems    int            `json:"total_items"`
	PinnedCount   int            `json:"pinned_count"`
	CoreInterests []RecoveryItem `json:"core_interests"`
}

// RecoveryArtifact is the persisted half of a recovery code: the salted
// hash plus the encrypted bundle. The plaintext code is disclosed exactly
// once at generation time and never stored.
type RecoveryArtifact struct {
	UserID          string    `db:"user_id"`
	CodeHash        string    `db:"code_hash"`
	CodeSalt        string    `db:"code_salt"`
	PepperVersion   int       `db:"pepper_version"`
	BundleEncrypted string    `db:"bundle_encrypted"`
	BundleDEK       string    `db:"bundle_dek"`
	KeyID           string    `db:"key_id"`
	CreatedAt       time.Time `db:"created_at"`
}

// ExportPayload is the GDPR data-portability result: everything the
// engine holds about one user.
type ExportPayload struct {
	ExportedAt     time.Time         `json:"exported_at"`
	UserID         string            `json:"user_id"`
	CurrentLibrary *LibrarySnapshot  `json:"current_library"`
	Interests      []*InterestRecord `json:"all_interests"`
	ActivityEvents []*ActivityEvent  `json:"activity_events"`
	TotalInterests int               `json:"total_interests"`
	TotalEvents    int               `json:"total_events"`
}

// DeletionResult reports a completed erasure.
type DeletionResult struct {
	UserID    string    `json:"user_id"`
	DeletedAt time.Time `json:"deleted_at"`
	Message   string    `json:"message"`
}

// RemovalNotice is emitted to the notification sink when pruning evicts
// an interest.
type RemovalNotice struct {
	UserID        string    `json:"user_id"`
	RemovedSymbol string    `json:"removed_symbol"`
	Reason        string    `json:"reason"`
	DaysInactive  int       `json:"days_inactive"`
	OccurredAt    time.Time `json:"occurred_at"`
}
