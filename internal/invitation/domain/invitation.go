package domain

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

// Invitation is a single-use grant of membership in OrgID to whoever verifies Email.
// Only the hash of the token is stored; the raw token is returned once at issue time.
type Invitation struct {
	ID         string     `json:"id"`
	OrgID      string     `json:"org_id"`
	Email      string     `json:"email"`
	TokenHash  string     `json:"-"`
	InvitedBy  string     `json:"invited_by"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	ConsumedBy string     `json:"consumed_by,omitempty"`
}

// State is derived, never stored.
type State string

const (
	StateIssued   State = "issued"
	StateRedeemed State = "redeemed"
	StateExpired  State = "expired"
)

var ErrInvalidEmail = errors.New("invalid invitee email")

// State reports the lifecycle state at now. A consumed invitation stays redeemed after its expiry.
func (i *Invitation) State(now time.Time) State {
	switch {
	case i.ConsumedAt != nil:
		return StateRedeemed
	case now.After(i.ExpiresAt):
		return StateExpired
	default:
		return StateIssued
	}
}

// MatchesEmail compares against the invitee email ignoring case and surrounding space.
func (i *Invitation) MatchesEmail(email string) bool {
	return NormalizeEmail(email) != "" && NormalizeEmail(email) == NormalizeEmail(i.Email)
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ParseEmail validates a bare address and returns it normalized.
func ParseEmail(email string) (string, error) {
	e := NormalizeEmail(email)
	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e {
		return "", ErrInvalidEmail
	}
	return e, nil
}
