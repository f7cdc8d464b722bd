package dharma

import (
	"path/filepath"
	"regexp"
	"strings"
)

const maxConventionalFileLines = 500

var kebabCaseFilename = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*\.[a-z0-9]+$`)

// namingConventionRule warns on code filenames that aren't kebab-case.
type namingConventionRule struct{}

func (namingConventionRule) ID() string         { return "convention.naming" }
func (namingConventionRule) Category() Category { return CategoryConvention }
func (namingConventionRule) Priority() int      { return 20 }

func (namingConventionRule) Evaluate(a Action, _ Context) []Verdict {
	if a.Type != ActionFileWrite || a.Path == "" {
		return nil
	}
	name := filepath.Base(a.Path)
	if isCodeFile(name) && !kebabCaseFilename.MatchString(name) {
		return []Verdict{{
			RuleID:   "convention.naming",
			Category: CategoryConvention,
			Severity: SeverityWarn,
			Message:  "file name is not kebab-case: " + name,
		}}
	}
	return nil
}

func isCodeFile(name string) bool {
	for _, ext := range []string{".js", ".ts", ".tsx", ".jsx", ".py", ".go"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// fileSizeRule warns on files exceeding the conventional line count.
type fileSizeRule struct{}

func (fileSizeRule) ID() string         { return "convention.file-size" }
func (fileSizeRule) Category() Category { return CategoryConvention }
func (fileSizeRule) Priority() int      { return 20 }

func (fileSizeRule) Evaluate(a Action, _ Context) []Verdict {
	if a.Type != ActionFileWrite || a.Content == "" {
		return nil
	}
	lines := strings.Count(a.Content, "\n") + 1
	if lines <= maxConventionalFileLines {
		return nil
	}
	return []Verdict{{
		RuleID:   "convention.file-size",
		Category: CategoryConvention,
		Severity: SeverityWarn,
		Message:  "file exceeds 500 lines",
	}}
}

// testFilePresenceRule warns when a new source file has no adjacent test.
// This is necessarily a heuristic at the action level: it only has the
// path being written, not the rest of the tree, so it flags files that
// don't themselves look like tests and leaves deeper verification to CI.
type testFilePresenceRule struct{}

func (testFilePresenceRule) ID() string         { return "convention.test-file-presence" }
func (testFilePresenceRule) Category() Category { return CategoryConvention }
func (testFilePresenceRule) Priority() int      { return 10 }

func (testFilePresenceRule) Evaluate(a Action, _ Context) []Verdict {
	if a.Type != ActionFileWrite || a.Path == "" {
		return nil
	}
	name := filepath.Base(a.Path)
	if !isCodeFile(name) || looksLikeTestFile(name) {
		return nil
	}
	return []Verdict{{
		RuleID:   "convention.test-file-presence",
		Category: CategoryConvention,
		Severity: SeverityWarn,
		Message:  "no adjacent test file detected for " + name,
	}}
}

func looksLikeTestFile(name string) bool {
	return strings.Contains(name, "_test.") || strings.Contains(name, ".test.") || strings.Contains(name, ".spec.")
}

// loggingHygieneRule warns on raw print-style debugging left in a write.
type loggingHygieneRule struct{}

func (loggingHygieneRule) ID() string         { return "convention.logging-hygiene" }
func (loggingHygieneRule) Category() Category { return CategoryConvention }
func (loggingHygieneRule) Priority() int      { return 10 }

var debugPrintPatterns = []*regexp.Regexp{
	regexp.MustCompile(`console\.log\(`),
	regexp.MustCompile(`fmt\.Println\(`),
	regexp.MustCompile(`print\(`),
}

func (loggingHygieneRule) Evaluate(a Action, _ Context) []Verdict {
	if a.Type != ActionFileWrite || a.Content == "" {
		return nil
	}
	for _, p := range debugPrintPatterns {
		if p.MatchString(a.Content) {
			return []Verdict{{
				RuleID:   "convention.logging-hygiene",
				Category: CategoryConvention,
				Severity: SeverityWarn,
				Message:  "raw debug print left in file; prefer structured logging",
			}}
		}
	}
	return nil
}

// importOrderingRule warns when Go import blocks mix bare stdlib and
// third-party imports without the conventional blank-line separation.
type importOrderingRule struct{}

func (importOrderingRule) ID() string         { return "convention.import-ordering" }
func (importOrderingRule) Category() Category { return CategoryConvention }
func (importOrderingRule) Priority() int      { return 10 }

func (importOrderingRule) Evaluate(a Action, _ Context) []Verdict {
	if a.Type != ActionFileWrite || !strings.HasSuffix(a.Path, ".go") {
		return nil
	}
	start := strings.Index(a.Content, "import (")
	if start < 0 {
		return nil
	}
	end := strings.Index(a.Content[start:], ")")
	if end < 0 {
		return nil
	}
	block := a.Content[start : start+end]
	sawThirdParty := false
	sawStdlibAfterGroupBreak := false
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(strings.Trim(line, "\""))
		if line == "" {
			sawThirdParty = false // blank line resets the group
			continue
		}
		if strings.Contains(line, ".") {
			sawThirdParty = true
		} else if sawThirdParty {
			sawStdlibAfterGroupBreak = true
		}
	}
	if !sawStdlibAfterGroupBreak {
		return nil
	}
	return []Verdict{{
		RuleID:   "convention.import-ordering",
		Category: CategoryConvention,
		Severity: SeverityWarn,
		Message:  "stdlib import appears after a third-party import group",
	}}
}

// ConventionRules returns the standard convention-category rule set.
func ConventionRules() []Rule {
	return []Rule{
		namingConventionRule{},
		fileSizeRule{},
		testFilePresenceRule{},
		loggingHygieneRule{},
		importOrderingRule{},
	}
}
