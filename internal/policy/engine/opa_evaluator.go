package engine

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"
)

const allowQuery = "data.dsodesk.authz.allow"

//go:embed default_policy.rego
var defaultRegoPolicy string

// OPAAuthorizer evaluates the operation policy with an in-process OPA Rego engine.
// The query is compiled once; Authorize is safe for concurrent use.
type OPAAuthorizer struct {
	query rego.PreparedEvalQuery
}

// NewOPAAuthorizer compiles the policy. An empty policyFile selects the built-in policy;
// otherwise the file must define package dsodesk.authz with a boolean allow rule.
func NewOPAAuthorizer(ctx context.Context, policyFile string) (*OPAAuthorizer, error) {
	src := defaultRegoPolicy
	name := "default_policy.rego"
	if policyFile != "" {
		b, err := os.ReadFile(policyFile)
		if err != nil {
			return nil, fmt.Errorf("read policy file: %w", err)
		}
		src, name = string(b), policyFile
	}
	return newOPAAuthorizer(ctx, name, src)
}

func newOPAAuthorizer(ctx context.Context, name, src string) (*OPAAuthorizer, error) {
	q, err := rego.New(
		rego.Query(allowQuery),
		rego.Module(name, src),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	return &OPAAuthorizer{query: q}, nil
}

// Authorize reports whether the policy allows in. A policy that yields no boolean denies.
func (a *OPAAuthorizer) Authorize(ctx context.Context, in Input) (bool, error) {
	rs, err := a.query.Eval(ctx, rego.EvalInput(in.toMap()))
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrPolicyEvaluation, err)
	}
	return rs.Allowed(), nil
}

// HealthCheck verifies the compiled policy evaluates: an owner renaming their org must be allowed.
// Does not touch the database. Returns nil on success.
func (a *OPAAuthorizer) HealthCheck(ctx context.Context) error {
	ok, err := a.Authorize(ctx, Input{Operation: OpOrgRename, Actor: Principal{UserID: "healthcheck", Role: "owner"}})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("policy health probe denied")
	}
	return nil
}
