package dharma

import (
	"regexp"
	"strings"
)

var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)sk-[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`(?i)AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`(?i)AIza[0-9A-Za-z_\-]{35}`),
	regexp.MustCompile(`(?i)gsk_[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`), // JWT
}

var destructiveCommandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+-rf\s+/(\s|$)`),
	regexp.MustCompile(`\bmkfs(\.\w+)?\b`),
	regexp.MustCompile(`\bdd\s+if=/dev/`),
	regexp.MustCompile(`chmod\s+777\s+/`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\};\s*:`), // fork bomb
	regexp.MustCompile(`>\s*/dev/sd[a-z]`),
}

var sudoPattern = regexp.MustCompile(`\bsudo\b`)

var exfiltrationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`curl\s+.*-d\s+@`),
	regexp.MustCompile(`wget\s+.*--post-file`),
	regexp.MustCompile(`\|\s*(nc|netcat)\s+`),
}

// credentialRule flags credential-shaped strings in a command or file write.
type credentialRule struct{}

func (credentialRule) ID() string          { return "security.no-leaked-credentials" }
func (credentialRule) Category() Category  { return CategorySecurity }
func (credentialRule) Priority() int       { return 100 }

func (credentialRule) Evaluate(a Action, _ Context) []Verdict {
	text := a.Command + "\n" + a.Content
	for _, p := range credentialPatterns {
		if p.MatchString(text) {
			return []Verdict{{
				RuleID:   "security.no-leaked-credentials",
				Category: CategorySecurity,
				Severity: SeverityDeny,
				Message:  "input appears to contain a credential or secret key",
			}}
		}
	}
	return nil
}

// destructiveCommandRule denies recognizable destructive shell patterns.
type destructiveCommandRule struct{}

func (destructiveCommandRule) ID() string         { return "security.no-destructive-commands" }
func (destructiveCommandRule) Category() Category { return CategorySecurity }
func (destructiveCommandRule) Priority() int       { return 100 }

func (destructiveCommandRule) Evaluate(a Action, _ Context) []Verdict {
	if a.Type != ActionShellExec {
		return nil
	}
	for _, p := range destructiveCommandPatterns {
		if p.MatchString(a.Command) {
			return []Verdict{{
				RuleID:   "security.no-destructive-commands",
				Category: CategorySecurity,
				Severity: SeverityDeny,
				Message:  "command matches a known destructive pattern",
			}}
		}
	}
	return nil
}

// sudoWithoutApprovalRule warns (never denies) on unapproved sudo use.
type sudoWithoutApprovalRule struct{}

func (sudoWithoutApprovalRule) ID() string         { return "security.sudo-without-approval" }
func (sudoWithoutApprovalRule) Category() Category { return CategorySecurity }
func (sudoWithoutApprovalRule) Priority() int       { return 90 }

func (sudoWithoutApprovalRule) Evaluate(a Action, _ Context) []Verdict {
	if a.Type != ActionShellExec || !sudoPattern.MatchString(a.Command) {
		return nil
	}
	return []Verdict{{
		RuleID:   "security.sudo-without-approval",
		Category: CategorySecurity,
		Severity: SeverityWarn,
		Message:  "command elevates privileges via sudo",
	}}
}

// exfiltrationRule denies shell pipelines that look like they're shipping a
// local file to a remote endpoint.
type exfiltrationRule struct{}

func (exfiltrationRule) ID() string         { return "security.no-exfiltration" }
func (exfiltrationRule) Category() Category { return CategorySecurity }
func (exfiltrationRule) Priority() int       { return 100 }

func (exfiltrationRule) Evaluate(a Action, _ Context) []Verdict {
	if a.Type != ActionShellExec {
		return nil
	}
	for _, p := range exfiltrationPatterns {
		if p.MatchString(a.Command) {
			return []Verdict{{
				RuleID:   "security.no-exfiltration",
				Category: CategorySecurity,
				Severity: SeverityDeny,
				Message:  "command pipes local data to a remote endpoint",
			}}
		}
	}
	return nil
}

// sandboxEnforcementRule denies file operations outside the project path
// or the user config root.
type sandboxEnforcementRule struct{}

func (sandboxEnforcementRule) ID() string         { return "security.sandbox-enforcement" }
func (sandboxEnforcementRule) Category() Category { return CategorySecurity }
func (sandboxEnforcementRule) Priority() int       { return 100 }

func (sandboxEnforcementRule) Evaluate(a Action, ctx Context) []Verdict {
	if a.Path == "" {
		return nil
	}
	if withinRoot(a.Path, ctx.ProjectPath) || withinRoot(a.Path, ctx.ConfigRoot) {
		return nil
	}
	return []Verdict{{
		RuleID:   "security.sandbox-enforcement",
		Category: CategorySecurity,
		Severity: SeverityDeny,
		Message:  "path lies outside the project sandbox",
	}}
}

func withinRoot(path, root string) bool {
	if root == "" {
		return false
	}
	root = strings.TrimSuffix(root, "/")
	return path == root || strings.HasPrefix(path, root+"/")
}

// SecurityRules returns the standard security-category rule set.
func SecurityRules() []Rule {
	return []Rule{
		credentialRule{},
		destructiveCommandRule{},
		sudoWithoutApprovalRule{},
		exfiltrationRule{},
		sandboxEnforcementRule{},
	}
}
