package domain

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

// Org represents an organization/tenant. Slug is derived once from Name at creation and never regenerated.
type Org struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Status    OrgStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type OrgStatus string

const (
	OrgStatusActive    OrgStatus = "active"
	OrgStatusSuspended OrgStatus = "suspended"
)

// MaxNameLength bounds organization names.
const MaxNameLength = 200

var (
	ErrInvalidName = errors.New("invalid organization name")
	ErrSlugTaken   = errors.New("organization slug already taken")
	ErrNotFound    = errors.New("organization not found")
)

// Validate validates the organization for persistence. Returns an error describing the first validation failure.
func (o *Org) Validate() error {
	if strings.TrimSpace(o.Name) == "" || len(o.Name) > MaxNameLength {
		return ErrInvalidName
	}
	if o.Slug == "" {
		return ErrInvalidName
	}
	if o.Status == "" {
		o.Status = OrgStatusActive
	}
	return nil
}

// Slugify lowercases name, drops every character outside [a-z0-9-] except whitespace,
// collapses whitespace runs into one hyphen and trims leading/trailing hyphens.
// Slugify(Slugify(x)) == Slugify(x).
func Slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pendingSpace := false
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = true
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-':
			if pendingSpace && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSpace = false
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-")
}
