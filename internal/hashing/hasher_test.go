package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trust-engine/internal/config"
)

const testRecoveryCode = "QT-AAAA-BBBB-CCCC-DDDD"

func testConfig(pepperSecret string) *config.Config {
	cfg := config.LoadConfig()
	cfg.Hashing.Argon2MemoryCost = 1024
	cfg.Hashing.Argon2TimeCost = 1
	cfg.Hashing.Argon2Parallelism = 1
	cfg.Hashing.PepperSecret = pepperSecret
	return cfg
}

func TestHashAndVerifyRecoveryCode(t *testing.T) {
	h := NewHasher(testConfig(""))

	result, err := h.HashRecoveryCode(testRecoveryCode)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Hash)
	assert.NotEmpty(t, result.Salt)
	assert.Equal(t, 1, result.PepperVersion)

	ok, err := h.VerifyRecoveryCode(testRecoveryCode, result)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.VerifyRecoveryCode("QT-AAAA-BBBB-CCCC-EEEE", result)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyRecoveryCode_AcrossRestart(t *testing.T) {
	cfg := testConfig("unit-test-pepper-secret")

	result, err := NewHasher(cfg).HashRecoveryCode(testRecoveryCode)
	require.NoError(t, err)

	// A fresh hasher stands in for a restarted process. The derived
	// pepper makes the stored hash verifiable without shared state.
	ok, err := NewHasher(cfg).VerifyRecoveryCode(testRecoveryCode, result)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRecoveryCode_AfterRotation(t *testing.T) {
	h := NewHasher(testConfig("unit-test-pepper-secret"))

	result, err := h.HashRecoveryCode(testRecoveryCode)
	require.NoError(t, err)

	h.rotatePepper()
	h.rotatePepper()
	assert.Equal(t, 3, h.currentPepper.Version)

	ok, err := h.VerifyRecoveryCode(testRecoveryCode, result)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRecoveryCode_RandomPepperDiesWithProcess(t *testing.T) {
	cfg := testConfig("")

	result, err := NewHasher(cfg).HashRecoveryCode(testRecoveryCode)
	require.NoError(t, err)

	// Without a secret each process draws its own pepper, so a second
	// hasher computes a different digest for the same code.
	ok, err := NewHasher(cfg).VerifyRecoveryCode(testRecoveryCode, result)
	require.NoError(t, err)
	assert.False(t, ok)
}
