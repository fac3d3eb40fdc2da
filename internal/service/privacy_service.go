package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"trust-engine/internal/encryption"
	"trust-engine/internal/hashing"
	"trust-engine/internal/models"
	"trust-engine/internal/repository"
	"trust-engine/internal/util"
)

var (
	ErrRecoveryNotFound     = errors.New("no recovery artifact for user")
	ErrRecoveryCodeMismatch = errors.New("recovery code does not match")
	ErrInvalidConfirmation  = errors.New("deletion not confirmed")
)

// deleteConfirmation must be sent verbatim before erasure touches
// anything.
const deleteConfirmation = "DELETE_MY_DATA"

// recoveryBundleSize caps how many top interests ride along in a
// recovery bundle.
const recoveryBundleSize = 20

const (
	recoveryCodePrefix   = "QT"
	recoveryCodeSegments = 4
	recoveryCodeSegLen   = 4
	recoveryCodeCharset  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// PrivacyService implements the user-facing data rights: recovery
// artifacts, full export, and verified erasure.
type PrivacyService struct {
	stores     *repository.Stores
	library    *LibraryService
	hasher     *hashing.Hasher
	encryption *encryption.EncryptionManager
	rates      RateTracker
	fpCache    FingerprintCache
}

func NewPrivacyService(
	stores *repository.Stores,
	library *LibraryService,
	hasher *hashing.Hasher,
	encryptionMgr *encryption.EncryptionManager,
	rates RateTracker,
	fpCache FingerprintCache,
) *PrivacyService {
	return &PrivacyService{
		stores:     stores,
		library:    library,
		hasher:     hasher,
		encryption: encryptionMgr,
		rates:      rates,
		fpCache:    fpCache,
	}
}

// GenerateRecoveryArtifact mints a fresh recovery code, persists its
// salted hash together with the encrypted library bundle, and returns
// the plaintext code. This is the only time the code is ever disclosed;
// a repeat call replaces the previous artifact.
func (s *PrivacyService) GenerateRecoveryArtifact(ctx context.Context, userID string) (string, error) {
	userID = util.SanitizeInput(userID)
	if userID == "" {
		return "", ErrInvalidInput
	}

	code, err := generateRecoveryCode()
	if err != nil {
		return "", fmt.Errorf("generate recovery code: %w", err)
	}
	hashed, err := s.hasher.HashRecoveryCode(code)
	if err != nil {
		return "", fmt.Errorf("hash recovery code: %w", err)
	}

	snapshot, err := s.library.GenerateSnapshot(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("snapshot for recovery bundle: %w", err)
	}
	bundle := buildRecoveryBundle(snapshot)
	plaintext, err := json.Marshal(bundle)
	if err != nil {
		return "", fmt.Errorf("marshal recovery bundle: %w", err)
	}
	sealed, err := s.encryption.Encrypt(ctx, plaintext)
	if err != nil {
		return "", fmt.Errorf("encrypt recovery bundle: %w", err)
	}

	artifact := &models.RecoveryArtifact{
		UserID:          userID,
		CodeHash:        hashed.Hash,
		CodeSalt:        hashed.Salt,
		PepperVersion:   hashed.PepperVersion,
		BundleEncrypted: sealed.EncryptedValue,
		BundleDEK:       sealed.EncryptedDEK,
		KeyID:           sealed.KeyID,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.stores.Recovery.Save(ctx, artifact); err != nil {
		return "", fmt.Errorf("save recovery artifact: %w", err)
	}

	util.Info("recovery artifact generated",
		util.String("user_id", userID),
		util.Int("bundle_items", len(bundle.CoreInterests)))
	return code, nil
}

// VerifyRecoveryCode checks a presented code against the stored hash
// and, on match, decrypts and returns the library bundle.
func (s *PrivacyService) VerifyRecoveryCode(ctx context.Context, userID, code string) (*models.RecoveryBundle, error) {
	userID = util.SanitizeInput(userID)
	if userID == "" || code == "" {
		return nil, ErrInvalidInput
	}

	artifact, err := s.stores.Recovery.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRecoveryNotFound
	} else if err != nil {
		return nil, err
	}

	ok, err := s.hasher.VerifyRecoveryCode(strings.ToUpper(strings.TrimSpace(code)), &hashing.HashResult{
		Hash:          artifact.CodeHash,
		Salt:          artifact.CodeSalt,
		PepperVersion: artifact.PepperVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("verify recovery code: %w", err)
	}
	if !ok {
		return nil, ErrRecoveryCodeMismatch
	}

	plaintext, err := s.encryption.Decrypt(ctx, &encryption.EncryptedData{
		EncryptedValue: artifact.BundleEncrypted,
		EncryptedDEK:   artifact.BundleDEK,
		KeyID:          artifact.KeyID,
	})
	if err != nil {
		return nil, fmt.Errorf("decrypt recovery bundle: %w", err)
	}
	var bundle models.RecoveryBundle
	if err := json.Unmarshal(plaintext, &bundle); err != nil {
		return nil, fmt.Errorf("unmarshal recovery bundle: %w", err)
	}
	return &bundle, nil
}

// Export gathers everything the engine holds about a user: the current
// snapshot, every interest record, and every raw event.
func (s *PrivacyService) Export(ctx context.Context, userID string) (*models.ExportPayload, error) {
	userID = util.SanitizeInput(userID)
	if userID == "" {
		return nil, ErrInvalidInput
	}

	payload := &models.ExportPayload{
		ExportedAt: time.Now().UTC(),
		UserID:     userID,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snapshot, err := s.library.GenerateSnapshot(gctx, userID)
		if err != nil {
			return fmt.Errorf("export snapshot: %w", err)
		}
		payload.CurrentLibrary = snapshot
		return nil
	})
	g.Go(func() error {
		interests, err := s.stores.Interests.ListByUser(gctx, userID)
		if err != nil {
			return fmt.Errorf("export interests: %w", err)
		}
		payload.Interests = interests
		return nil
	})
	g.Go(func() error {
		events, err := s.stores.Events.ListByUser(gctx, userID)
		if err != nil {
			return fmt.Errorf("export events: %w", err)
		}
		payload.ActivityEvents = events
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	payload.TotalInterests = len(payload.Interests)
	payload.TotalEvents = len(payload.ActivityEvents)
	return payload, nil
}

// Delete erases every record held for a user. The confirmation token is
// checked before anything is touched; any store failure aborts with an
// error so partial erasure is never reported as success.
func (s *PrivacyService) Delete(ctx context.Context, userID, confirmation string) (*models.DeletionResult, error) {
	userID = util.SanitizeInput(userID)
	if userID == "" {
		return nil, ErrInvalidInput
	}
	if confirmation != deleteConfirmation {
		return nil, ErrInvalidConfirmation
	}

	deletions := []struct {
		name string
		fn   func(context.Context, string) error
	}{
		{"events", s.stores.Events.DeleteByUser},
		{"interests", s.stores.Interests.DeleteByUser},
		{"ip_history", s.stores.IPHistory.DeleteByUser},
		{"devices", s.stores.Devices.DeleteByUser},
		{"login_patterns", s.stores.Patterns.DeleteByUser},
		{"api_activity", s.stores.APIActivity.DeleteByUser},
		{"library_versions", s.stores.Versions.DeleteByUser},
		{"recovery", s.stores.Recovery.DeleteByUser},
	}
	for _, d := range deletions {
		if err := d.fn(ctx, userID); err != nil {
			return nil, fmt.Errorf("delete %s: %w", d.name, err)
		}
	}

	if s.rates != nil {
		if err := s.rates.Reset(ctx, userID); err != nil {
			util.Warn("counter reset failed during erasure",
				util.String("user_id", userID), util.ErrorField(err))
		}
	}
	if s.fpCache != nil {
		if err := s.fpCache.Delete(ctx, userID); err != nil {
			util.Warn("fingerprint cache purge failed during erasure",
				util.String("user_id", userID), util.ErrorField(err))
		}
	}

	util.Info("user data erased", util.String("user_id", userID))
	return &models.DeletionResult{
		UserID:    userID,
		DeletedAt: time.Now().UTC(),
		Message:   "all behavioral data permanently deleted",
	}, nil
}

func buildRecoveryBundle(snapshot *models.LibrarySnapshot) *models.RecoveryBundle {
	limit := len(snapshot.Items)
	if limit > recoveryBundleSize {
		limit = recoveryBundleSize
	}
	items := make([]models.RecoveryItem, 0, limit)
	for _, item := range snapshot.Items[:limit] {
		items = append(items, models.RecoveryItem{
			Symbol: item.Symbol,
			Tier:   item.Tier,
			Score:  item.Score,
		})
	}
	return &models.RecoveryBundle{
		GeneratedAt:   snapshot.GeneratedAt,
		Version:       snapshot.Version,
		Fingerprint:   snapshot.Fingerprint,
		TotalItems:    snapshot.TotalItems,
		PinnedCount:   snapshot.PinnedCount,
		CoreInterests: items,
	}
}

// generateRecoveryCode builds a QT-XXXX-XXXX-XXXX-XXXX code from
// crypto/rand. Rejection sampling keeps the charset distribution
// uniform.
func generateRecoveryCode() (string, error) {
	segments := make([]string, 0, recoveryCodeSegments+1)
	segments = append(segments, recoveryCodePrefix)
	for i := 0; i < recoveryCodeSegments; i++ {
		seg := make([]byte, recoveryCodeSegLen)
		for j := range seg {
			c, err := randomCharsetByte()
			if err != nil {
				return "", err
			}
			seg[j] = c
		}
		segments = append(segments, string(seg))
	}
	return strings.Join(segments, "-"), nil
}

func randomCharsetByte() (byte, error) {
	// 252 is the largest multiple of len(charset) below 256.
	limit := byte(256 - 256%len(recoveryCodeCharset))
	var b [1]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		if b[0] < limit {
			return recoveryCodeCharset[int(b[0])%len(recoveryCodeCharset)], nil
		}
	}
}
