// Package lokapala implements the guardian scanner (Rakshaka in spec
// terms): a post-hoc pass over tool executions, file changes, and command
// output that emits findings without ever blocking execution.
package lokapala

import "time"

// Severity ranks how serious a finding is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Domain names the data surface a finding came from.
type Domain string

const (
	DomainToolExecution Domain = "tool_execution"
	DomainFileChange    Domain = "file_change"
	DomainCommandOutput Domain = "command_output"
)

// Finding is a single guardian observation.
type Finding struct {
	ID          string
	GuardianID  string
	Domain      Domain
	Severity    Severity
	Title       string
	Description string
	Location    string
	Suggestion  string
	Confidence  float64
	AutoFixable bool
	Timestamp   time.Time
}

// ToolExecution is one observed tool call.
type ToolExecution struct {
	ToolName string
	Command  string
	Output   string
	Location string
}

// FileChange is one observed file write/edit.
type FileChange struct {
	Path    string
	Content string
}

// CommandOutput is captured stdout/stderr from a shell command.
type CommandOutput struct {
	Command  string
	Output   string
	Location string
}

// ScanContext bundles everything scan() inspects in one pass.
type ScanContext struct {
	ToolExecutions []ToolExecution
	FileChanges    []FileChange
	CommandOutputs []CommandOutput
}
