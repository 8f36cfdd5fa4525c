package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"time"
)

// Issuer and audience used by NewTestTokenProvider.
const (
	TestIssuer   = "test-issuer"
	TestAudience = "test-audience"
)

// NewTestTokenProvider returns a TokenProvider backed by a freshly generated ECDSA P-256 key.
// For unit tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(key, &key.PublicKey, TestIssuer, TestAudience, 15*time.Minute), nil
}
