// Package policy applies operator-supplied Rego rules to routing decisions
// before any agent runs. Rules live under data.routing and can deny a
// decision outright or redirect it to a different agent.
package policy

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/harrier/pkg/model"
	"github.com/open-policy-agent/opa/v1/rego"
)

// Gate evaluates routing policies. A zero-value Gate (no policy files)
// allows every decision unchanged.
type Gate struct {
	routingPolicy *rego.PreparedEvalQuery
}

// New loads all Rego files from policyDir and prepares the routing query.
// An empty or missing directory yields a permissive gate.
func New(ctx context.Context, policyDir string) (*Gate, error) {
	routing, err := loadRoutingPolicy(ctx, policyDir)
	if err != nil {
		return nil, err
	}
	return &Gate{routingPolicy: routing}, nil
}

// SessionSummary is the policy-visible view of the session
type SessionSummary struct {
	Answered int `json:"answered"`
	Accuracy int `json:"accuracy"`
	TotalXP  int `json:"totalXp"`
}

// Check evaluates the routing policy against a decision. It returns the
// decision to act on: either the input unchanged, or a copy with the
// agent replaced by a policy redirect. A deny returns ErrDeniedByPolicy.
func (g *Gate) Check(ctx context.Context, decision *model.Decision, summary SessionSummary) (*model.Decision, error) {
	if g == nil || g.routingPolicy == nil {
		return decision, nil
	}

	input := map[string]any{
		"decision": map[string]any{
			"agent":   string(decision.Agent),
			"topicId": string(decision.TopicID),
			"urgency": string(decision.Urgency),
		},
		"session": summary,
	}

	rs, err := g.routingPolicy.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate routing policy")
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return decision, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return decision, nil
	}

	if denied, reason := parseDeny(data); denied {
		return nil, goerr.Wrap(ErrDeniedByPolicy, "routing decision denied",
			goerr.V("agent", decision.Agent), goerr.V("reason", reason))
	}

	if redirect := getString(data, "redirect"); redirect != "" {
		target := model.AgentKind(redirect)
		if err := target.Validate(); err != nil {
			return nil, goerr.Wrap(err, "routing policy redirect names unknown agent",
				goerr.V("redirect", redirect))
		}
		redirected := *decision
		redirected.Agent = target
		return &redirected, nil
	}

	return decision, nil
}

// ErrDeniedByPolicy marks decisions rejected by the routing policy
var ErrDeniedByPolicy = goerr.New("routing denied by policy")

func parseDeny(data map[string]any) (bool, string) {
	v, ok := data["deny"]
	if !ok {
		return false, ""
	}

	switch d := v.(type) {
	case bool:
		return d, ""
	case string:
		return d != "", d
	case []any:
		if len(d) == 0 {
			return false, ""
		}
		if s, ok := d[0].(string); ok {
			return true, s
		}
		return true, ""
	}
	return false, ""
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
