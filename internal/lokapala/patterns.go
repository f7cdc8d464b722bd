package lokapala

import "regexp"

// pattern pairs a detector with the metadata needed to turn a match into a
// Finding.
type pattern struct {
	id          string
	title       string
	description string
	severity    Severity
	suggestion  string
	confidence  float64
	autoFixable bool
	re          *regexp.Regexp
}

var credentialPatterns = []pattern{
	{
		id:          "credential.api-key",
		title:       "Possible API key",
		description: "output contains a string shaped like a vendor API key",
		severity:    SeverityCritical,
		suggestion:  "rotate the key and scrub it from logs/history",
		confidence:  0.85,
		re:          regexp.MustCompile(`(?i)\b(sk|pk|gsk|rk)-[a-zA-Z0-9]{20,}\b`),
	},
	{
		id:          "credential.aws-access-key",
		title:       "Possible AWS access key ID",
		description: "output contains an AKIA-prefixed AWS access key ID",
		severity:    SeverityCritical,
		suggestion:  "revoke the key in IAM immediately",
		confidence:  0.9,
		re:          regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	},
	{
		id:          "credential.pem-header",
		title:       "Private key material",
		description: "output contains a PEM private key header",
		severity:    SeverityCritical,
		suggestion:  "remove the key from output and rotate it",
		confidence:  0.95,
		re:          regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
	},
	{
		id:          "credential.jwt",
		title:       "Possible JWT",
		description: "output contains a string shaped like a JSON Web Token",
		severity:    SeverityWarning,
		suggestion:  "confirm the token is a test fixture, not a live session token",
		confidence:  0.6,
		re:          regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),
	},
}

var dangerousCommandPatterns = []pattern{
	{
		id:          "command.rm-rf-root",
		title:       "Recursive delete near filesystem root",
		description: "command recursively removes a path under or including /",
		severity:    SeverityCritical,
		confidence:  0.9,
		re:          regexp.MustCompile(`rm\s+-rf\s+/(\s|$)`),
	},
	{
		id:          "command.disk-overwrite",
		title:       "Direct disk device write",
		description: "command writes directly to a block device",
		severity:    SeverityCritical,
		confidence:  0.9,
		re:          regexp.MustCompile(`\bdd\s+if=/dev/|>\s*/dev/sd[a-z]`),
	},
	{
		id:          "command.fork-bomb",
		title:       "Fork bomb",
		description: "command matches the classic shell fork-bomb shape",
		severity:    SeverityCritical,
		confidence:  0.95,
		re:          regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\};\s*:`),
	},
	{
		id:          "command.world-writable-root",
		title:       "World-writable permissions on a system path",
		description: "command grants 777 permissions to a rooted path",
		severity:    SeverityWarning,
		confidence:  0.7,
		re:          regexp.MustCompile(`chmod\s+777\s+/`),
	},
}

var sqlInjectionPatterns = []pattern{
	{
		id:          "sqli.string-concat-query",
		title:       "Possible SQL injection via string concatenation",
		description: "a SQL statement appears to be built by concatenating untrusted input",
		severity:    SeverityWarning,
		suggestion:  "use parameterized queries instead of string concatenation",
		confidence:  0.55,
		re:          regexp.MustCompile(`(?i)(select|insert|update|delete)\s+.*\+\s*["'].*["']\s*\+`),
	},
	{
		id:          "sqli.tautology",
		title:       "Classic SQL injection tautology",
		description: "output contains a common SQL injection probe string",
		severity:    SeverityCritical,
		confidence:  0.8,
		re:          regexp.MustCompile(`(?i)'\s*or\s+1\s*=\s*1`),
	},
}

var pathTraversalPatterns = []pattern{
	{
		id:          "path.traversal",
		title:       "Path traversal sequence",
		description: "a file path contains a parent-directory traversal sequence",
		severity:    SeverityWarning,
		suggestion:  "resolve and validate the path stays under the project root",
		confidence:  0.7,
		re:          regexp.MustCompile(`(\.\./){2,}|%2e%2e%2f`),
	},
}

var sensitivePathPatterns = []pattern{
	{
		id:          "path.sensitive-system-file",
		title:       "Reference to a sensitive system file",
		description: "a file path references a credential or system-identity file",
		severity:    SeverityWarning,
		confidence:  0.6,
		re:          regexp.MustCompile(`(?i)/etc/(passwd|shadow)|\.ssh/id_(rsa|ed25519)|\.aws/credentials`),
	},
}
