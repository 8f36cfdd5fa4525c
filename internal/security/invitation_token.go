package security

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// InvitationTokenBytes is the entropy of a raw invitation token (256 bits).
const InvitationTokenBytes = 32

// ErrMalformedInvitationToken is returned for strings that cannot be a token this service issued.
var ErrMalformedInvitationToken = errors.New("malformed invitation token")

// InvitationTokens generates invitation tokens and computes the digest stored in place of them.
// The digest is BLAKE2b-256 keyed with the configured secret, hex-encoded; without a secret it is unkeyed.
type InvitationTokens struct {
	key []byte
}

// NewInvitationTokens returns a generator keyed by secret. Secrets longer than BLAKE2b's 64-byte key
// limit are first reduced with BLAKE2b-512.
func NewInvitationTokens(secret string) *InvitationTokens {
	key := []byte(secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	return &InvitationTokens{key: key}
}

// Generate returns a fresh URL-safe raw token and its digest.
func (g *InvitationTokens) Generate() (raw, hash string, err error) {
	b := make([]byte, InvitationTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	raw = base64.RawURLEncoding.EncodeToString(b)
	return raw, g.hashBytes(b), nil
}

// Hash returns the digest for a raw token presented by a client.
func (g *InvitationTokens) Hash(raw string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil || len(b) != InvitationTokenBytes {
		return "", ErrMalformedInvitationToken
	}
	return g.hashBytes(b), nil
}

func (g *InvitationTokens) hashBytes(b []byte) string {
	h, err := blake2b.New256(g.key)
	if err != nil {
		// unreachable: key length is bounded in NewInvitationTokens
		panic(err)
	}
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}
