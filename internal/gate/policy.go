// Package gate holds the authorization and budget collaborator boundaries.
// The coordinator consults both before dispatching a node; the shipped
// adapters are in-process reference implementations behind the same
// interfaces a remote service would satisfy.
package gate

import (
	"context"

	"github.com/google/uuid"
)

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Allow bool
	// RuleID identifies the rule that produced the decision.
	RuleID string
	Reason string
	// Constraints carries rule-imposed execution constraints (e.g. a model
	// downgrade from the budget-degrade rule).
	Constraints map[string]string
}

// Request describes one authorization question.
type Request struct {
	TenantID uuid.UUID
	Subject  string // who: workflow node identity
	Action   string // what: "execute", "compensate"
	Resource string // on what: node kind or tool name
	// AccessTier classifies the resource; tier 0 skips evaluation entirely.
	AccessTier int
	// BudgetRemaining is the tenant's remaining budget fraction (0..1).
	BudgetRemaining float64
	// Approved marks a resource with standing human approval.
	Approved bool
}

// PolicyGate answers allow/deny per task before dispatch. A deny forces the
// node to FAILED with reason PolicyDenied and is never retried.
type PolicyGate interface {
	Evaluate(ctx context.Context, req Request) (Decision, error)
}

// RuleEffect is what a matched rule decides.
type RuleEffect int

const (
	EffectAllow RuleEffect = iota
	EffectDeny
)

// Rule is one entry in the policy list. Rules are evaluated in order and the
// first match wins, so restrictive rules go first. No match means deny.
type Rule struct {
	ID     string
	Effect RuleEffect
	Reason string
	// Matches reports whether the rule applies to the request.
	Matches func(Request) bool
	// Constrain optionally attaches constraints on allow.
	Constrain func(Request) map[string]string
}

// RulePolicy is the in-process PolicyGate: an ordered rule list with a
// fail-safe default deny.
type RulePolicy struct {
	rules []Rule
}

// NewRulePolicy builds a gate from an ordered rule list.
func NewRulePolicy(rules []Rule) *RulePolicy {
	return &RulePolicy{rules: rules}
}

// DefaultRules is the stock rule set: exhausted budgets deny everything,
// restricted tiers need standing approval, low tiers pass, the rest is
// denied by the fail-safe.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:      "budget-exhausted-deny",
			Effect:  EffectDeny,
			Reason:  "tenant budget exhausted",
			Matches: func(r Request) bool { return r.BudgetRemaining <= 0 },
		},
		{
			ID:      "critical-tier-deny",
			Effect:  EffectDeny,
			Reason:  "critical resources are operator-only",
			Matches: func(r Request) bool { return r.AccessTier >= 3 },
		},
		{
			ID:      "restricted-needs-approval",
			Effect:  EffectDeny,
			Reason:  "restricted resource without standing approval",
			Matches: func(r Request) bool { return r.AccessTier == 2 && !r.Approved },
		},
		{
			ID:      "approved-restricted-allow",
			Effect:  EffectAllow,
			Matches: func(r Request) bool { return r.AccessTier == 2 && r.Approved },
		},
		{
			ID:      "low-tier-allow",
			Effect:  EffectAllow,
			Matches: func(r Request) bool { return r.AccessTier <= 1 },
			Constrain: func(r Request) map[string]string {
				if r.BudgetRemaining <= degradeThreshold {
					return map[string]string{"degrade": "true"}
				}
				return nil
			},
		},
	}
}

// Evaluate walks the rules in order; first match wins, no match denies.
func (p *RulePolicy) Evaluate(_ context.Context, req Request) (Decision, error) {
	for _, rule := range p.rules {
		if !rule.Matches(req) {
			continue
		}
		if rule.Effect == EffectDeny {
			return Decision{Allow: false, RuleID: rule.ID, Reason: rule.Reason}, nil
		}
		d := Decision{Allow: true, RuleID: rule.ID}
		if rule.Constrain != nil {
			d.Constraints = rule.Constrain(req)
		}
		return d, nil
	}
	return Decision{Allow: false, RuleID: "default-deny", Reason: "no matching rule"}, nil
}
