package service

import (
	"trust-engine/internal/encryption"
	"trust-engine/internal/hashing"
	"trust-engine/internal/repository"
	"trust-engine/internal/security"
)

// ServiceFactory creates and manages service instances.
type ServiceFactory struct {
	stores        *repository.Stores
	hasher        *hashing.Hasher
	encryptionMgr *encryption.EncryptionManager
	geo           security.Geolocator
	notifier      Notifier
	analytics     AnalyticsSink
	rates         RateTracker
	fpCache       FingerprintCache
	auditor       SnapshotAuditor

	libraryService  *LibraryService
	activityService *ActivityService
	trustService    *TrustService
	privacyService  *PrivacyService
}

// NewServiceFactory wires the shared dependencies. The optional
// surfaces (notifier, analytics, rates, cache, auditor) may be nil; the
// services degrade gracefully without them.
func NewServiceFactory(
	stores *repository.Stores,
	hasher *hashing.Hasher,
	encryptionMgr *encryption.EncryptionManager,
	geo security.Geolocator,
	notifier Notifier,
	analytics AnalyticsSink,
	rates RateTracker,
	fpCache FingerprintCache,
	auditor SnapshotAuditor,
) *ServiceFactory {
	return &ServiceFactory{
		stores:        stores,
		hasher:        hasher,
		encryptionMgr: encryptionMgr,
		geo:           geo,
		notifier:      notifier,
		analytics:     analytics,
		rates:         rates,
		fpCache:       fpCache,
		auditor:       auditor,
	}
}

// LibraryService returns the library service instance (singleton).
func (f *ServiceFactory) LibraryService() *LibraryService {
	if f.libraryService == nil {
		f.libraryService = NewLibraryService(
			f.stores.Interests,
			f.stores.Versions,
			f.fpCache,
			f.auditor,
		)
	}
	return f.libraryService
}

// ActivityService returns the activity service instance (singleton).
func (f *ServiceFactory) ActivityService() *ActivityService {
	if f.activityService == nil {
		f.activityService = NewActivityService(
			f.stores,
			f.geo,
			f.notifier,
			f.analytics,
			f.rates,
		)
	}
	return f.activityService
}

// TrustService returns the trust service instance (singleton).
func (f *ServiceFactory) TrustService() *TrustService {
	if f.trustService == nil {
		var counters security.RequestCounters
		if c, ok := f.rates.(security.RequestCounters); ok {
			counters = c
		}
		f.trustService = NewTrustService(
			security.NewOriginScorer(f.stores.IPHistory, f.geo),
			security.NewDeviceScorer(f.stores.Devices),
			security.NewTimePatternScorer(f.stores.Patterns),
			security.NewRateScorer(counters, f.stores.APIActivity),
			f.LibraryService(),
		)
	}
	return f.trustService
}

// PrivacyService returns the privacy service instance (singleton).
func (f *ServiceFactory) PrivacyService() *PrivacyService {
	if f.privacyService == nil {
		f.privacyService = NewPrivacyService(
			f.stores,
			f.LibraryService(),
			f.hasher,
			f.encryptionMgr,
			f.rates,
			f.fpCache,
		)
	}
	return f.privacyService
}
