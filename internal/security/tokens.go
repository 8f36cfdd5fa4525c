package security

import (
	"crypto"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	identitydomain "dsodesk/internal/identity/domain"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or fails issuer/audience checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNoSigningKey is returned by Issue when the provider only verifies.
	ErrNoSigningKey = errors.New("token provider has no signing key")
)

// SessionClaims are the claims the identity provider puts on a session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// TokenProvider verifies session JWTs (RS256 or ES256) issued by the identity provider.
// With a private key it can also mint them, which only local tooling does.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	ttl        time.Duration
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider. privateKey may be nil for verify-only use.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, ttl time.Duration) *TokenProvider {
	if publicKey == nil && privateKey != nil {
		publicKey = privateKey.Public()
	}
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Issue mints a session token for userID. emailVerified controls the email_verified claim.
func (p *TokenProvider) Issue(userID, email string, emailVerified bool) (token string, expiresAt time.Time, err error) {
	if p.privateKey == nil {
		return "", time.Time{}, ErrNoSigningKey
	}
	method := SigningMethod(p.privateKey.Public())
	if method == nil {
		return "", time.Time{}, ErrInvalidKey
	}
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := p.now().UTC()
	expiresAt = now.Add(p.ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:         email,
		EmailVerified: emailVerified,
	}
	token, err = jwt.NewWithClaims(method, claims).SignedString(p.privateKey)
	return token, expiresAt, err
}

// Verify parses and validates a session token (signature, exp, iss, aud) and returns the caller.
// The email is carried over only when the token marks it verified.
func (p *TokenProvider) Verify(tokenString string) (*identitydomain.Caller, error) {
	method := SigningMethod(p.publicKey)
	if method == nil {
		return nil, ErrInvalidKey
	}
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return p.publicKey, nil
	},
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	caller := &identitydomain.Caller{UserID: claims.Subject}
	if claims.EmailVerified {
		caller.Email = strings.TrimSpace(claims.Email)
	}
	return caller, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
