// seed inserts development sample data for local testing. Run with go run ./cmd/seed.
// Idempotent: skips inserts if the "acme-dental-llc" organization already exists.
package main

import (
	"context"
	"fmt"
	"log"

	"dsodesk/internal/audit"
	"dsodesk/internal/config"
	"dsodesk/internal/db"
	"dsodesk/internal/db/migrate"
	dsoservice "dsodesk/internal/dso/service"
	identitydomain "dsodesk/internal/identity/domain"
	invitationservice "dsodesk/internal/invitation/service"
	membershipdomain "dsodesk/internal/membership/domain"
	membershipservice "dsodesk/internal/membership/service"
	orgdomain "dsodesk/internal/organization/domain"
	orgservice "dsodesk/internal/organization/service"
	"dsodesk/internal/platform/rbac"
	"dsodesk/internal/policy/engine"
	"dsodesk/internal/security"
	"dsodesk/internal/store"
)

const (
	orgName     = "Acme Dental, LLC"
	dsoName     = "Acme Dental North"
	ownerID     = "dev-owner-001"
	ownerEmail  = "owner@acmedental.example"
	adminID     = "dev-admin-001"
	inviteeID   = "dev-invitee-001"
	inviteeMail = "bob@acmedental.example"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env or export DATABASE_URL")
	}
	if err := migrate.Run(cfg.DatabaseURL, migrate.Up, 0); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	st := store.NewPostgres(conn)
	defer st.Close()
	repos := st.Repos()

	existing, err := repos.Organizations.GetOrganizationBySlug(ctx, orgdomain.Slugify(orgName))
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Printf("Seed already applied (%s exists). Skipping.", existing.Slug)
		printSessions(cfg)
		return
	}

	evaluator := rbac.NewEvaluator(repos.Memberships, repos.DSOs)
	policy, err := engine.NewOPAAuthorizer(ctx, cfg.PolicyFile)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}
	auditLogger := audit.NewLogger(repos.AuditLogs, func(context.Context) string { return "127.0.0.1" })
	orgs := orgservice.NewService(st, evaluator, policy, auditLogger, nil)
	members := membershipservice.NewService(st, evaluator, policy, auditLogger, nil)
	dsos := dsoservice.NewService(st, evaluator, policy, auditLogger, nil)
	invitations := invitationservice.NewService(st, evaluator, policy,
		security.NewInvitationTokens(cfg.InvitationTokenSecret), auditLogger, nil,
		invitationservice.Config{TTL: cfg.InvitationLifetime()})

	owner := &identitydomain.Caller{UserID: ownerID, Email: ownerEmail}
	org, err := orgs.Create(ctx, owner, orgName)
	if err != nil {
		log.Fatalf("create org: %v", err)
	}
	if _, err := members.Add(ctx, owner, org.Org.ID, adminID, membershipdomain.RoleAdmin); err != nil {
		log.Fatalf("add admin: %v", err)
	}
	d, err := dsos.Create(ctx, owner, org.Org.ID, dsoName)
	if err != nil {
		log.Fatalf("create dso: %v", err)
	}
	issued, err := invitations.Issue(ctx, owner, org.Org.ID, inviteeMail)
	if err != nil {
		log.Fatalf("issue invitation: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Organization: %s (%s) id=%s\n", org.Org.Name, org.Org.Slug, org.Org.ID)
	fmt.Printf("DSO: %s id=%s\n", d.Name, d.ID)
	fmt.Printf("Invitation for %s (expires %s): %s\n", inviteeMail, issued.Invitation.ExpiresAt.Format("2006-01-02 15:04"), issued.Token)
	printSessions(cfg)
}

// printSessions mints dev session tokens when JWT_PRIVATE_KEY is configured.
func printSessions(cfg *config.Config) {
	if cfg.JWTPrivateKey == "" {
		fmt.Println("JWT_PRIVATE_KEY is not set; no dev session tokens minted.")
		return
	}
	signer, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("jwt key: %v", err)
	}
	tp := security.NewTokenProvider(signer, nil, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	for _, u := range []struct{ id, email string }{
		{ownerID, ownerEmail},
		{adminID, "admin@acmedental.example"},
		{inviteeID, inviteeMail},
	} {
		tok, exp, err := tp.Issue(u.id, u.email, true)
		if err != nil {
			log.Fatalf("issue session for %s: %v", u.id, err)
		}
		fmt.Printf("Session %s <%s> (expires %s):\n  %s\n", u.id, u.email, exp.Format("15:04"), tok)
	}
}
