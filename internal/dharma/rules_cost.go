package dharma

import (
	"fmt"
	"time"
)

const (
	perCallCostWarnThresholdUSD = 1.00
	budgetWarnFraction          = 0.80
	rateLimitCallsPerWindow     = 30
	rateLimitWindow             = 60 * time.Second
)

// expensiveModels is a best-effort list used by the model-cost guard; it is
// not exhaustive and is meant to catch the common case of an overpowered
// model applied to a trivial prompt.
var expensiveModels = map[string]bool{
	"opus":   true,
	"gpt-4":  true,
	"o1":     true,
	"o1-pro": true,
}

// budgetCapRule denies once total spend reaches the configured budget and
// warns starting at budgetWarnFraction.
type budgetCapRule struct{}

func (budgetCapRule) ID() string         { return "cost.budget-cap" }
func (budgetCapRule) Category() Category { return CategoryCost }
func (budgetCapRule) Priority() int      { return 80 }

func (budgetCapRule) Evaluate(a Action, ctx Context) []Verdict {
	if a.Type != ActionLLMCall || ctx.CostBudgetUSD <= 0 {
		return nil
	}
	if ctx.CostSoFarUSD >= ctx.CostBudgetUSD {
		return []Verdict{{
			RuleID:   "cost.budget-cap",
			Category: CategoryCost,
			Severity: SeverityDeny,
			Message:  fmt.Sprintf("cost budget exhausted: $%.2f of $%.2f spent", ctx.CostSoFarUSD, ctx.CostBudgetUSD),
		}}
	}
	if ctx.CostSoFarUSD >= ctx.CostBudgetUSD*budgetWarnFraction {
		return []Verdict{{
			RuleID:   "cost.budget-cap",
			Category: CategoryCost,
			Severity: SeverityWarn,
			Message:  fmt.Sprintf("cost budget at %.0f%%: $%.2f of $%.2f spent", 100*ctx.CostSoFarUSD/ctx.CostBudgetUSD, ctx.CostSoFarUSD, ctx.CostBudgetUSD),
		}}
	}
	return nil
}

// perCallCostRule warns on an individually expensive call.
type perCallCostRule struct{}

func (perCallCostRule) ID() string         { return "cost.per-call-warning" }
func (perCallCostRule) Category() Category { return CategoryCost }
func (perCallCostRule) Priority() int      { return 70 }

func (perCallCostRule) Evaluate(a Action, _ Context) []Verdict {
	if a.Type != ActionLLMCall || a.CallCostUSD <= perCallCostWarnThresholdUSD {
		return nil
	}
	return []Verdict{{
		RuleID:   "cost.per-call-warning",
		Category: CategoryCost,
		Severity: SeverityWarn,
		Message:  fmt.Sprintf("call cost $%.2f exceeds $%.2f", a.CallCostUSD, perCallCostWarnThresholdUSD),
	}}
}

// modelCostGuardRule warns when an expensive model is invoked for a short,
// codeless prompt where a cheaper model would likely suffice.
type modelCostGuardRule struct{}

func (modelCostGuardRule) ID() string         { return "cost.model-cost-guard" }
func (modelCostGuardRule) Category() Category { return CategoryCost }
func (modelCostGuardRule) Priority() int      { return 60 }

func (modelCostGuardRule) Evaluate(a Action, _ Context) []Verdict {
	if a.Type != ActionLLMCall || a.HasCodeBlock || a.PromptChars >= 200 {
		return nil
	}
	if !isExpensiveModel(a.Model) {
		return nil
	}
	return []Verdict{{
		RuleID:   "cost.model-cost-guard",
		Category: CategoryCost,
		Severity: SeverityWarn,
		Message:  fmt.Sprintf("model %q is expensive for a %d-character prompt with no code", a.Model, a.PromptChars),
	}}
}

func isExpensiveModel(model string) bool {
	for key := range expensiveModels {
		if len(model) >= len(key) && containsFold(model, key) {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	hl, nl := len(haystack), len(needle)
	if nl == 0 || nl > hl {
		return false
	}
	for i := 0; i+nl <= hl; i++ {
		if equalFold(haystack[i:i+nl], needle) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// rateLimitRule denies when a session exceeds rateLimitCallsPerWindow LLM
// calls within rateLimitWindow.
type rateLimitRule struct {
	limiter *RateLimiter
}

func newRateLimitRule() *rateLimitRule {
	return &rateLimitRule{limiter: NewRateLimiter(rateLimitCallsPerWindow, rateLimitWindow)}
}

func (r *rateLimitRule) ID() string         { return "cost.rate-limit" }
func (r *rateLimitRule) Category() Category { return CategoryCost }
func (r *rateLimitRule) Priority() int      { return 95 }

func (r *rateLimitRule) Evaluate(a Action, ctx Context) []Verdict {
	if a.Type != ActionLLMCall || a.SessionID == "" {
		return nil
	}
	now := ctx.Now
	if now.IsZero() {
		now = time.Now()
	}
	exceeded, count := r.limiter.Record(a.SessionID, now)
	if !exceeded {
		return nil
	}
	return []Verdict{{
		RuleID:   "cost.rate-limit",
		Category: CategoryCost,
		Severity: SeverityDeny,
		Message:  fmt.Sprintf("session made %d LLM calls in the trailing %s, limit is %d", count, rateLimitWindow, rateLimitCallsPerWindow),
	}}
}

// CostRules returns the standard cost-category rule set, each with its own
// rate-limiter state.
func CostRules() []Rule {
	return []Rule{
		budgetCapRule{},
		perCallCostRule{},
		modelCostGuardRule{},
		newRateLimitRule(),
	}
}
