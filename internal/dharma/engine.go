package dharma

import "sort"

// EngineConfig tunes enforcement behavior independent of which rules run.
type EngineConfig struct {
	// StrictDeny short-circuits evaluation on the first deny verdict. When
	// false (the default), evaluation continues so every violation is
	// reported even after a deny is already known.
	StrictDeny bool
}

// Engine evaluates a fixed, priority-ordered rule pipeline against actions.
type Engine struct {
	config EngineConfig
	rules  []Rule
}

// NewEngine builds an engine from an explicit rule set, sorted by
// descending priority (ties keep the given order, since Go's sort is not
// guaranteed stable — we use SliceStable explicitly for that reason).
func NewEngine(config EngineConfig, rules []Rule) *Engine {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() > ordered[j].Priority()
	})
	return &Engine{config: config, rules: ordered}
}

// Evaluate runs every rule against action/ctx and combines their verdicts:
// any deny makes the overall status deny; else any warn makes it warn;
// else allow. Evaluation is deterministic for a fixed (action, ctx,
// ruleset) and has no side effects beyond a rate-limit rule's window
// bookkeeping.
func (e *Engine) Evaluate(action Action, ctx Context) Result {
	var verdicts []Verdict
	deniedAlready := false

	for _, rule := range e.rules {
		if e.config.StrictDeny && deniedAlready {
			break
		}
		for _, v := range rule.Evaluate(action, ctx) {
			verdicts = append(verdicts, v)
			if v.Severity == SeverityDeny {
				deniedAlready = true
			}
		}
	}

	return Result{Status: combine(verdicts), Verdicts: verdicts}
}

func combine(verdicts []Verdict) Status {
	sawWarn := false
	for _, v := range verdicts {
		switch v.Severity {
		case SeverityDeny:
			return StatusDeny
		case SeverityWarn:
			sawWarn = true
		}
	}
	if sawWarn {
		return StatusWarn
	}
	return StatusAllow
}
