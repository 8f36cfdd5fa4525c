package domain

import (
	"errors"
	"strings"
	"time"
)

// DSO is a dental support organization managed by exactly one organization. OrgID never changes.
type DSO struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrNotFound    = errors.New("dso not found")
	ErrInvalidName = errors.New("invalid dso name")
)

// Validate checks the DSO is ready to persist.
func (d *DSO) Validate() error {
	if strings.TrimSpace(d.Name) == "" || len(d.Name) > 200 {
		return ErrInvalidName
	}
	if d.OrgID == "" {
		return errors.New("dso: org id required")
	}
	return nil
}
