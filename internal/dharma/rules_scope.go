package dharma

import "strings"

// projectBoundaryRule denies file operations outside the project path.
type projectBoundaryRule struct{}

func (projectBoundaryRule) ID() string         { return "scope.project-boundary" }
func (projectBoundaryRule) Category() Category { return CategoryScope }
func (projectBoundaryRule) Priority() int      { return 85 }

func (projectBoundaryRule) Evaluate(a Action, ctx Context) []Verdict {
	if a.Path == "" || ctx.ProjectPath == "" {
		return nil
	}
	if withinRoot(a.Path, ctx.ProjectPath) {
		return nil
	}
	return []Verdict{{
		RuleID:   "scope.project-boundary",
		Category: CategoryScope,
		Severity: SeverityDeny,
		Message:  "path falls outside the project boundary",
	}}
}

// readOnlyPathRule denies writes to configured read-only paths.
type readOnlyPathRule struct{}

func (readOnlyPathRule) ID() string         { return "scope.read-only-paths" }
func (readOnlyPathRule) Category() Category { return CategoryScope }
func (readOnlyPathRule) Priority() int      { return 85 }

func (readOnlyPathRule) Evaluate(a Action, ctx Context) []Verdict {
	if a.Type != ActionFileWrite || a.Path == "" {
		return nil
	}
	for _, ro := range ctx.ReadOnlyPaths {
		if withinRoot(a.Path, ro) {
			return []Verdict{{
				RuleID:   "scope.read-only-paths",
				Category: CategoryScope,
				Severity: SeverityDeny,
				Message:  "path is configured read-only: " + ro,
			}}
		}
	}
	return nil
}

// noModifyGitHistoryRule denies git commands that rewrite history.
type noModifyGitHistoryRule struct{}

func (noModifyGitHistoryRule) ID() string         { return "scope.no-modify-git-history" }
func (noModifyGitHistoryRule) Category() Category { return CategoryScope }
func (noModifyGitHistoryRule) Priority() int      { return 85 }

var historyRewritingGitArgs = []string{"push --force", "push -f", "rebase", "reset --hard", "filter-branch", "commit --amend"}

func (noModifyGitHistoryRule) Evaluate(a Action, _ Context) []Verdict {
	if a.Type != ActionGitCommand {
		return nil
	}
	joined := strings.Join(a.GitArgs, " ")
	for _, bad := range historyRewritingGitArgs {
		if strings.Contains(joined, bad) {
			return []Verdict{{
				RuleID:   "scope.no-modify-git-history",
				Category: CategoryScope,
				Severity: SeverityDeny,
				Message:  "git command rewrites published history: " + bad,
			}}
		}
	}
	return nil
}

// ScopeRules returns the standard scope-category rule set.
func ScopeRules() []Rule {
	return []Rule{
		projectBoundaryRule{},
		readOnlyPathRule{},
		noModifyGitHistoryRule{},
	}
}
