package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/mssola/useragent"
	"go.uber.org/zap"

	"trust-engine/internal/models"
	"trust-engine/internal/repository"
	"trust-engine/internal/util"
)

const deviceNeutral = 0.6

// DeviceInfo is the parsed shape of a client string.
type DeviceInfo struct {
	Browser        string
	BrowserVersion string
	OS             string
	DeviceType     string
}

// ParseUserAgent extracts browser family, OS and device class from a
// client string.
func ParseUserAgent(userAgent string) DeviceInfo {
	ua := useragent.New(userAgent)
	browser, version := ua.Browser()

	deviceType := models.DeviceDesktop
	lowered := strings.ToLower(userAgent)
	switch {
	case strings.Contains(lowered, "ipad") || strings.Contains(lowered, "tablet"):
		deviceType = models.DeviceTablet
	case ua.Mobile():
		deviceType = models.DeviceMobile
	}

	return DeviceInfo{
		Browser:        browser,
		BrowserVersion: version,
		OS:             ua.OS(),
		DeviceType:     deviceType,
	}
}

// GenerateDeviceFingerprint hashes the client string plus optional
// client-declared traits into a stable device key.
func GenerateDeviceFingerprint(userAgent string, extras ...string) string {
	input := userAgent + strings.Join(extras, "")
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// DeviceScorer scores the device factor from a user's device history.
// Carries 25% of the ensemble weight.
type DeviceScorer struct {
	devices repository.DeviceStore
}

func NewDeviceScorer(devices repository.DeviceStore) *DeviceScorer {
	return &DeviceScorer{devices: devices}
}

// Score rates a device fingerprint against the user's history. Trusted
// devices score 1.0; unfamiliar hardware bottoms out at 0.4.
func (s *DeviceScorer) Score(ctx context.Context, userID, fingerprintHash, userAgent string, now time.Time) float64 {
	devices, err := s.devices.ListByUser(ctx, userID)
	if err != nil {
		util.Warn("Device history unavailable, using neutral score",
			zap.String("user_id", userID),
			zap.Error(err))
		return deviceNeutral
	}

	if len(devices) == 0 {
		util.Debug("First device for user", zap.String("user_id", userID))
		return deviceNeutral
	}

	for _, device := range devices {
		if device.FingerprintHash != fingerprintHash {
			continue
		}

		if device.IsTrusted {
			return 1.0
		}

		daysKnown := int(now.Sub(device.FirstSeen).Hours() / 24)
		switch {
		case daysKnown >= 30:
			return 0.9
		case daysKnown >= 7:
			return 0.8
		default:
			return 0.7
		}
	}

	// New fingerprint. Compare against the historical majority.
	current := ParseUserAgent(userAgent)

	sameBrowser := false
	typeCounts := make(map[string]int)
	for _, device := range devices {
		if device.Browser == current.Browser {
			sameBrowser = true
		}
		typeCounts[device.DeviceType]++
	}

	majorityType := ""
	majorityCount := 0
	for deviceType, count := range typeCounts {
		if count > majorityCount {
			majorityType = deviceType
			majorityCount = count
		}
	}

	switch {
	case sameBrowser && current.DeviceType == majorityType:
		return 0.6
	case sameBrowser:
		return 0.5
	default:
		util.Warn("Unfamiliar device",
			zap.String("user_id", userID),
			zap.String("browser", current.Browser))
		return 0.4
	}
}
