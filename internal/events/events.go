// Package events publishes domain facts (org created, member added, invitation redeemed, ...) after they commit.
// Delivery is best-effort: publishers log failures and never fail the originating request.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Type names a domain event. Values match the audit actions.
type Type string

const (
	OrgCreated         Type = "org_created"
	OrgRenamed         Type = "org_renamed"
	MemberAdded        Type = "member_added"
	RoleChanged        Type = "role_changed"
	MemberRemoved      Type = "member_removed"
	InvitationIssued   Type = "invitation_issued"
	InvitationRedeemed Type = "invitation_redeemed"
	DSOCreated         Type = "dso_created"
)

// Source is stamped on every event this service produces.
const Source = "dsodesk"

// Event is one committed domain fact.
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"eventType"`
	Source     string            `json:"source"`
	OrgID      string            `json:"orgId"`
	ActorID    string            `json:"actorId,omitempty"`
	SubjectID  string            `json:"subjectId,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"createdAt"`
}

// New builds an event with a fresh id, the service source and the current UTC time.
func New(typ Type, orgID, actorID, subjectID string, attrs map[string]string) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       typ,
		Source:     Source,
		OrgID:      orgID,
		ActorID:    actorID,
		SubjectID:  subjectID,
		Attributes: attrs,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events to a sink.
type Publisher interface {
	// Publish sends one event. Implementations may block briefly; use PublishAsync from request paths.
	Publish(ctx context.Context, ev Event) error
	// Close releases resources. Safe to call more than once.
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Multi fans each event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
