package models

import "time"

// Risk levels and gating actions, ordered from most to least trusted.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskElevated = "elevated"
	RiskHigh     = "high"

	ActionAllow      = "allow"
	ActionMonitor    = "monitor"
	ActionRequireMFA = "require_mfa"
	ActionBlock      = "block"
)

// Factor names as they appear in TrustResult.Factors.
const (
	FactorOrigin      = "ip_location"
	FactorDevice      = "device"
	FactorFingerprint = "library_fingerprint"
	FactorTimePattern = "time_pattern"
	FactorRequestRate = "api_behavior"
)

// LoginContext carries everything the trust engine needs about the
// request being evaluated.
type LoginContext struct {
	UserID             string    `json:"user_id"`
	IPAddress          string    `json:"ip"`
	UserAgent          string    `json:"user_agent"`
	DeviceFingerprint  string    `json:"device_fingerprint,omitempty"`
	LibraryFingerprint string    `json:"library_fingerprint,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// TrustResult is the verdict of one trust evaluation. Computed fresh on
// every call and never persisted as state.
type TrustResult struct {
	TrustScore float64            `json:"trust_score"`
	RiskLevel  string             `json:"risk_level"`
	Action     string             `json:"action"`
	Factors    map[string]float64 `json:"factors"`
}
