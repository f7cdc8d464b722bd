package dharma

// PolicySet bundles a named group of rules under a single set-level
// priority. Rules within a set still resolve ties via their own Priority.
type PolicySet struct {
	Name     string
	Priority int
	Rules    []Rule
}

// Preset is a named, ready-to-build bundle: engine config plus the policy
// sets that populate it.
type Preset struct {
	Name        string
	Config      EngineConfig
	PolicySets  []PolicySet
	// DefaultCostBudgetUSD and DefaultReadOnlyPaths seed a Context for
	// callers that don't already track their own; Evaluate itself only
	// ever reads from the Context it's given.
	DefaultCostBudgetUSD float64
	DefaultReadOnlyPaths []string
}

// setPriorityRule wraps a Rule so its effective priority is offset by the
// owning policy set's priority, preserving intra-set ordering.
type setPriorityRule struct {
	Rule
	effective int
}

func (s setPriorityRule) Priority() int { return s.effective }

// BuildEngine flattens a preset's policy sets into a single ordered rule
// pipeline and constructs the engine.
func BuildEngine(p Preset) *Engine {
	var rules []Rule
	for _, set := range p.PolicySets {
		for _, r := range set.Rules {
			rules = append(rules, setPriorityRule{Rule: r, effective: set.Priority*1000 + r.Priority()})
		}
	}
	return NewEngine(p.Config, rules)
}

// StrictPreset denies aggressively: every category runs, deny short-circuits
// the rest of evaluation, and the cost budget is tight.
func StrictPreset() Preset {
	return Preset{
		Name:   "strict",
		Config: EngineConfig{StrictDeny: true},
		PolicySets: []PolicySet{
			{Name: "security", Priority: 4, Rules: SecurityRules()},
			{Name: "scope", Priority: 3, Rules: ScopeRules()},
			{Name: "cost", Priority: 2, Rules: CostRules()},
			{Name: "convention", Priority: 1, Rules: ConventionRules()},
		},
		DefaultCostBudgetUSD: 5.00,
	}
}

// StandardPreset is the default balanced posture: all categories run,
// evaluation always completes so every violation surfaces.
func StandardPreset() Preset {
	return Preset{
		Name:   "standard",
		Config: EngineConfig{StrictDeny: false},
		PolicySets: []PolicySet{
			{Name: "security", Priority: 4, Rules: SecurityRules()},
			{Name: "scope", Priority: 3, Rules: ScopeRules()},
			{Name: "cost", Priority: 2, Rules: CostRules()},
			{Name: "convention", Priority: 1, Rules: ConventionRules()},
		},
		DefaultCostBudgetUSD: 20.00,
	}
}

// PermissivePreset keeps security and scope enforcement but drops cost and
// convention nagging, for trusted, cost-insensitive sessions.
func PermissivePreset() Preset {
	return Preset{
		Name:   "permissive",
		Config: EngineConfig{StrictDeny: false},
		PolicySets: []PolicySet{
			{Name: "security", Priority: 2, Rules: SecurityRules()},
			{Name: "scope", Priority: 1, Rules: ScopeRules()},
		},
	}
}

// ReadonlyPreset denies file writes, shell execution, and git commands,
// regardless of what the other categories would otherwise allow. Other
// action types (file reads, LLM calls, network calls) are not denied by
// the read-only rule.
func ReadonlyPreset() Preset {
	return Preset{
		Name:   "readonly",
		Config: EngineConfig{StrictDeny: true},
		PolicySets: []PolicySet{
			{Name: "scope", Priority: 2, Rules: append(ScopeRules(), readOnlyEnforcementRule{})},
			{Name: "security", Priority: 1, Rules: SecurityRules()},
		},
	}
}

// ReviewPreset runs every category without strict short-circuit and ranks
// the convention rules above scope and cost, suited to an offline review/CI
// pass rather than a live gate. The convention rule set itself is the same
// one the other presets use.
func ReviewPreset() Preset {
	return Preset{
		Name:   "review",
		Config: EngineConfig{StrictDeny: false},
		PolicySets: []PolicySet{
			{Name: "security", Priority: 4, Rules: SecurityRules()},
			{Name: "convention", Priority: 3, Rules: ConventionRules()},
			{Name: "scope", Priority: 2, Rules: ScopeRules()},
			{Name: "cost", Priority: 1, Rules: CostRules()},
		},
		DefaultCostBudgetUSD: 50.00,
	}
}

// readOnlyEnforcementRule denies any write/exec action outright. Used only
// by ReadonlyPreset.
type readOnlyEnforcementRule struct{}

func (readOnlyEnforcementRule) ID() string         { return "scope.readonly-mode" }
func (readOnlyEnforcementRule) Category() Category { return CategoryScope }
func (readOnlyEnforcementRule) Priority() int      { return 100 }

func (readOnlyEnforcementRule) Evaluate(a Action, _ Context) []Verdict {
	switch a.Type {
	case ActionFileWrite, ActionShellExec, ActionGitCommand:
		return []Verdict{{
			RuleID:   "scope.readonly-mode",
			Category: CategoryScope,
			Severity: SeverityDeny,
			Message:  "session is in read-only mode",
		}}
	default:
		return nil
	}
}
