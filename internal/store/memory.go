package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	auditdomain "dsodesk/internal/audit/domain"
	dsodomain "dsodesk/internal/dso/domain"
	invitationdomain "dsodesk/internal/invitation/domain"
	membershipdomain "dsodesk/internal/membership/domain"
	orgdomain "dsodesk/internal/organization/domain"
)

type memberKey struct {
	orgID, userID string
}

type memData struct {
	orgs        map[string]orgdomain.Org
	memberships map[memberKey]membershipdomain.Membership
	dsos        map[string]dsodomain.DSO
	invitations map[string]invitationdomain.Invitation // by token hash
	audit       []auditdomain.AuditLog
}

func newMemData() *memData {
	return &memData{
		orgs:        map[string]orgdomain.Org{},
		memberships: map[memberKey]membershipdomain.Membership{},
		dsos:        map[string]dsodomain.DSO{},
		invitations: map[string]invitationdomain.Invitation{},
	}
}

// clone copies the maps. Values are plain structs, except Invitation.ConsumedAt which is copied on write.
func (d *memData) clone() *memData {
	c := &memData{
		orgs:        make(map[string]orgdomain.Org, len(d.orgs)),
		memberships: make(map[memberKey]membershipdomain.Membership, len(d.memberships)),
		dsos:        make(map[string]dsodomain.DSO, len(d.dsos)),
		invitations: make(map[string]invitationdomain.Invitation, len(d.invitations)),
		audit:       append([]auditdomain.AuditLog(nil), d.audit...),
	}
	for k, v := range d.orgs {
		c.orgs[k] = v
	}
	for k, v := range d.memberships {
		c.memberships[k] = v
	}
	for k, v := range d.dsos {
		c.dsos[k] = v
	}
	for k, v := range d.invitations {
		c.invitations[k] = v
	}
	return c
}

// Memory is an in-process Store. Transactions serialize on a single write lock and work on a copy of
// the data that replaces the live copy only on commit.
type Memory struct {
	mu   sync.RWMutex
	data *memData
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{data: newMemData()}
}

func (m *Memory) Repos() Repos {
	return m.reposFor(&memView{m: m})
}

func (m *Memory) WithTx(ctx context.Context, fn func(Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	view := &memView{m: m, tx: m.data.clone()}
	if err := fn(m.reposFor(view)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	m.data = view.tx
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) reposFor(v *memView) Repos {
	return Repos{
		Organizations: memOrgs{v},
		Memberships:   memMemberships{v},
		DSOs:          memDSOs{v},
		Invitations:   memInvitations{v},
		AuditLogs:     memAudit{v},
	}
}

// memView routes repository calls either to the live data under the store lock, or to a transaction's
// private copy (tx != nil) while WithTx holds the write lock.
type memView struct {
	m  *Memory
	tx *memData
}

func (v *memView) read(ctx context.Context, fn func(*memData) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.tx != nil {
		return fn(v.tx)
	}
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	return fn(v.m.data)
}

func (v *memView) write(ctx context.Context, fn func(*memData) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.tx != nil {
		return fn(v.tx)
	}
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	return fn(v.m.data)
}

type memOrgs struct{ v *memView }

func (r memOrgs) GetOrganizationByID(ctx context.Context, id string) (*orgdomain.Org, error) {
	var out *orgdomain.Org
	err := r.v.read(ctx, func(d *memData) error {
		if o, ok := d.orgs[id]; ok {
			out = &o
		}
		return nil
	})
	return out, err
}

func (r memOrgs) GetOrganizationBySlug(ctx context.Context, slug string) (*orgdomain.Org, error) {
	var out *orgdomain.Org
	err := r.v.read(ctx, func(d *memData) error {
		for _, o := range d.orgs {
			if o.Slug == slug {
				o := o
				out = &o
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r memOrgs) CreateOrganization(ctx context.Context, o *orgdomain.Org) error {
	return r.v.write(ctx, func(d *memData) error {
		for _, existing := range d.orgs {
			if existing.Slug == o.Slug {
				return fmt.Errorf("create organization %q: %w", o.Slug, orgdomain.ErrSlugTaken)
			}
		}
		if _, ok := d.orgs[o.ID]; ok {
			return fmt.Errorf("create organization %s: duplicate id", o.ID)
		}
		d.orgs[o.ID] = *o
		return nil
	})
}

func (r memOrgs) UpdateOrganization(ctx context.Context, o *orgdomain.Org) error {
	return r.v.write(ctx, func(d *memData) error {
		cur, ok := d.orgs[o.ID]
		if !ok {
			return fmt.Errorf("update organization %s: %w", o.ID, orgdomain.ErrNotFound)
		}
		cur.Name = o.Name
		cur.Status = o.Status
		cur.UpdatedAt = o.UpdatedAt
		d.orgs[o.ID] = cur
		return nil
	})
}

type memMemberships struct{ v *memView }

func (r memMemberships) GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*membershipdomain.Membership, error) {
	var out *membershipdomain.Membership
	err := r.v.read(ctx, func(d *memData) error {
		if m, ok := d.memberships[memberKey{orgID, userID}]; ok {
			out = &m
		}
		return nil
	})
	return out, err
}

func (r memMemberships) ListMembershipsByOrg(ctx context.Context, orgID string) ([]*membershipdomain.Membership, error) {
	return r.list(ctx, func(m membershipdomain.Membership) bool { return m.OrgID == orgID })
}

func (r memMemberships) ListMembershipsByUser(ctx context.Context, userID string) ([]*membershipdomain.Membership, error) {
	return r.list(ctx, func(m membershipdomain.Membership) bool { return m.UserID == userID })
}

func (r memMemberships) list(ctx context.Context, keep func(membershipdomain.Membership) bool) ([]*membershipdomain.Membership, error) {
	var out []*membershipdomain.Membership
	err := r.v.read(ctx, func(d *memData) error {
		for _, m := range d.memberships {
			if keep(m) {
				m := m
				out = append(out, &m)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r memMemberships) CreateMembership(ctx context.Context, m *membershipdomain.Membership) error {
	return r.v.write(ctx, func(d *memData) error {
		k := memberKey{m.OrgID, m.UserID}
		if _, ok := d.memberships[k]; ok {
			return membershipdomain.ErrAlreadyMember
		}
		d.memberships[k] = *m
		return nil
	})
}

func (r memMemberships) EnsureMembership(ctx context.Context, m *membershipdomain.Membership) (*membershipdomain.Membership, bool, error) {
	var out membershipdomain.Membership
	var created bool
	err := r.v.write(ctx, func(d *memData) error {
		k := memberKey{m.OrgID, m.UserID}
		if existing, ok := d.memberships[k]; ok {
			out = existing
			return nil
		}
		d.memberships[k] = *m
		out, created = *m, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, created, nil
}

func (r memMemberships) UpsertMembership(ctx context.Context, m *membershipdomain.Membership) (*membershipdomain.Membership, error) {
	var out membershipdomain.Membership
	err := r.v.write(ctx, func(d *memData) error {
		k := memberKey{m.OrgID, m.UserID}
		if existing, ok := d.memberships[k]; ok {
			existing.Role = m.Role
			existing.UpdatedAt = m.UpdatedAt
			d.memberships[k] = existing
			out = existing
			return nil
		}
		d.memberships[k] = *m
		out = *m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r memMemberships) DeleteByUserAndOrg(ctx context.Context, userID, orgID string) (bool, error) {
	var deleted bool
	err := r.v.write(ctx, func(d *memData) error {
		k := memberKey{orgID, userID}
		_, deleted = d.memberships[k]
		delete(d.memberships, k)
		return nil
	})
	return deleted, err
}

func (r memMemberships) CountOwnersByOrg(ctx context.Context, orgID string) (int64, error) {
	var n int64
	err := r.v.read(ctx, func(d *memData) error {
		for k, m := range d.memberships {
			if k.orgID == orgID && m.Role == membershipdomain.RoleOwner {
				n++
			}
		}
		return nil
	})
	return n, err
}

type memDSOs struct{ v *memView }

func (r memDSOs) GetByID(ctx context.Context, id string) (*dsodomain.DSO, error) {
	var out *dsodomain.DSO
	err := r.v.read(ctx, func(d *memData) error {
		if x, ok := d.dsos[id]; ok {
			out = &x
		}
		return nil
	})
	return out, err
}

func (r memDSOs) GetOwningOrg(ctx context.Context, dsoID string) (string, error) {
	var orgID string
	err := r.v.read(ctx, func(d *memData) error {
		orgID = d.dsos[dsoID].OrgID
		return nil
	})
	return orgID, err
}

func (r memDSOs) ListByOrg(ctx context.Context, orgID string) ([]*dsodomain.DSO, error) {
	var out []*dsodomain.DSO
	err := r.v.read(ctx, func(d *memData) error {
		for _, x := range d.dsos {
			if x.OrgID == orgID {
				x := x
				out = append(out, &x)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r memDSOs) Create(ctx context.Context, x *dsodomain.DSO) error {
	return r.v.write(ctx, func(d *memData) error {
		if _, ok := d.orgs[x.OrgID]; !ok {
			return fmt.Errorf("create dso: %w", orgdomain.ErrNotFound)
		}
		if _, ok := d.dsos[x.ID]; ok {
			return fmt.Errorf("create dso %s: duplicate id", x.ID)
		}
		d.dsos[x.ID] = *x
		return nil
	})
}

type memInvitations struct{ v *memView }

func (r memInvitations) Create(ctx context.Context, inv *invitationdomain.Invitation) error {
	return r.v.write(ctx, func(d *memData) error {
		if _, ok := d.invitations[inv.TokenHash]; ok {
			return fmt.Errorf("create invitation: duplicate token hash")
		}
		d.invitations[inv.TokenHash] = *inv
		return nil
	})
}

func (r memInvitations) GetByTokenHash(ctx context.Context, tokenHash string) (*invitationdomain.Invitation, error) {
	var out *invitationdomain.Invitation
	err := r.v.read(ctx, func(d *memData) error {
		if inv, ok := d.invitations[tokenHash]; ok {
			out = &inv
		}
		return nil
	})
	return out, err
}

// GetByTokenHashForUpdate needs no row lock: transactions already hold the store's write lock.
func (r memInvitations) GetByTokenHashForUpdate(ctx context.Context, tokenHash string) (*invitationdomain.Invitation, error) {
	return r.GetByTokenHash(ctx, tokenHash)
}

func (r memInvitations) MarkConsumed(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	var consumed bool
	err := r.v.write(ctx, func(d *memData) error {
		for hash, inv := range d.invitations {
			if inv.ID != id {
				continue
			}
			if inv.ConsumedAt != nil {
				return nil
			}
			t := at
			inv.ConsumedAt = &t
			inv.ConsumedBy = userID
			d.invitations[hash] = inv
			consumed = true
			return nil
		}
		return nil
	})
	return consumed, err
}

func (r memInvitations) ListPendingByOrg(ctx context.Context, orgID string, now time.Time) ([]*invitationdomain.Invitation, error) {
	var out []*invitationdomain.Invitation
	err := r.v.read(ctx, func(d *memData) error {
		for _, inv := range d.invitations {
			if inv.OrgID == orgID && inv.State(now) == invitationdomain.StateIssued {
				inv := inv
				out = append(out, &inv)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.After(out[j].IssuedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

type memAudit struct{ v *memView }

func (r memAudit) Create(ctx context.Context, a *auditdomain.AuditLog) error {
	return r.v.write(ctx, func(d *memData) error {
		d.audit = append(d.audit, *a)
		return nil
	})
}

func (r memAudit) ListByOrg(ctx context.Context, orgID string, limit, offset int32) ([]*auditdomain.AuditLog, error) {
	var matched []*auditdomain.AuditLog
	err := r.v.read(ctx, func(d *memData) error {
		for i := len(d.audit) - 1; i >= 0; i-- {
			if d.audit[i].OrgID == orgID {
				a := d.audit[i]
				matched = append(matched, &a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if int(offset) >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && int(limit) < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}
