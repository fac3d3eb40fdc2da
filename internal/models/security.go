package models

import "time"

// IPHistoryRecord tracks one origin address seen for a user. Keyed by
// (user_id, ip_address); feeds only the origin-trust scorer.
type IPHistoryRecord struct {
	UserID      string    `json:"user_id" db:"user_id"`
	IPAddress   string    `json:"ip_address" db:"ip_address"`
	CountryCode string    `json:"country_code" db:"country_code"`
	CountryName string    `json:"country_name" db:"country_name"`
	City        string    `json:"city" db:"city"`
	Latitude    float64   `json:"latitude" db:"latitude"`
	Longitude   float64   `json:"longitude" db:"longitude"`
	HasCoords   bool      `json:"has_coords" db:"has_coords"`
	IsVPN       bool      `json:"is_vpn" db:"is_vpn"`
	IsProxy     bool      `json:"is_proxy" db:"is_proxy"`
	FirstSeen   time.Time `json:"first_seen" db:"first_seen"`
	LastSeen    time.Time `json:"last_seen" db:"last_seen"`
	LoginCount  int64     `json:"login_count" db:"login_count"`
}

// DeviceRecord tracks one device fingerprint seen for a user. Keyed by
// (user_id, fingerprint_hash); feeds only the device-trust scorer.
type DeviceRecord struct {
	UserID          string    `json:"user_id" db:"user_id"`
	FingerprintHash string    `json:"fingerprint_hash" db:"fingerprint_hash"`
	UserAgent       string    `json:"user_agent" db:"user_agent"`
	Browser         string    `json:"browser" db:"browser"`
	BrowserVersion  string    `json:"browser_version" db:"browser_version"`
	OS              string    `json:"os" db:"os"`
	DeviceType      string    `json:"device_type" db:"device_type"`
	IsTrusted       bool      `json:"is_trusted" db:"is_trusted"`
	FirstSeen       time.Time `json:"first_seen" db:"first_seen"`
	LastLogin       time.Time `json:"last_login" db:"last_login"`
	LoginCount      int64     `json:"login_count" db:"login_count"`
}

// Device classes.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

// LoginTimePattern is the singleton per-user login-hour profile backing
// the time-pattern scorer. Histograms are keyed by hour "0".."23" and
// weekday "0".."6" (Monday=0).
type LoginTimePattern struct {
	UserID           string         `json:"user_id" db:"user_id"`
	HourHistogram    map[string]int `json:"hour_histogram" db:"hour_histogram"`
	WeekdayHistogram map[string]int `json:"weekday_histogram" db:"weekday_histogram"`
	PeakHours        []int          `json:"peak_hours" db:"peak_hours"`
	TotalLogins      int64          `json:"total_logins" db:"total_logins"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

// APIActivityRecord is the singleton per-user request-behavior record
// used as the fallback source for the request-rate scorer when the
// real-time counters are unavailable.
type APIActivityRecord struct {
	UserID               string    `json:"user_id" db:"user_id"`
	RequestsLastMinute   int64     `json:"requests_last_minute" db:"requests_last_minute"`
	RequestsLastHour     int64     `json:"requests_last_hour" db:"requests_last_hour"`
	RequestsLastDay      int64     `json:"requests_last_day" db:"requests_last_day"`
	FailedLoginsLastHour int64     `json:"failed_logins_last_hour" db:"failed_logins_last_hour"`
	FailedLoginsLastDay  int64     `json:"failed_logins_last_day" db:"failed_logins_last_day"`
	LastFailedLogin      time.Time `json:"last_failed_login" db:"last_failed_login"`
	RapidRequests        bool      `json:"rapid_requests_detected" db:"rapid_requests_detected"`
	LastRequest          time.Time `json:"last_request" db:"last_request"`
	LastReset            time.Time `json:"last_activity_reset" db:"last_activity_reset"`
}
