package lokapala

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/darpana-core/darpana-core/internal/ring"
)

const (
	// DefaultConfidenceThreshold filters out low-confidence findings.
	DefaultConfidenceThreshold = 0.5
	// DefaultMaxFindings bounds the retained-findings ring buffer.
	DefaultMaxFindings = 500
)

// Config tunes a Scanner's thresholds and lets callers extend the static
// pattern arrays.
type Config struct {
	ConfidenceThreshold float64
	MaxFindings         int
	ExtraCredential     []pattern
	ExtraDangerous      []pattern
}

func (c *Config) applyDefaults() {
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if c.MaxFindings <= 0 {
		c.MaxFindings = DefaultMaxFindings
	}
}

// Scanner is the guardian: it scans tool executions, file changes, and
// command output for known-bad shapes and retains recent findings in a
// bounded ring buffer. It never blocks or mutates what it scans.
type Scanner struct {
	mu         sync.Mutex
	config     Config
	findings   *ring.Buffer[Finding]
	nowSeconds func() int64
}

// New creates a Scanner. nowSeconds supplies the timestamp used to build
// deterministic finding IDs and populate Finding.Timestamp's Unix seconds;
// pass time.Now().Unix in production, a fixed/incrementing func in tests.
func New(config Config, nowSeconds func() int64) *Scanner {
	config.applyDefaults()
	return &Scanner{
		config:     config,
		findings:   ring.New[Finding](config.MaxFindings),
		nowSeconds: nowSeconds,
	}
}

// Scan inspects every tool execution, file change, and command output in
// ctx, returning the findings at or above the confidence threshold (also
// recording them into the retained ring buffer).
func (s *Scanner) Scan(ctx ScanContext) []Finding {
	var found []Finding

	for _, te := range ctx.ToolExecutions {
		text := te.Command + "\n" + te.Output
		found = append(found, s.matchAll(DomainToolExecution, te.Location, text)...)
	}
	for _, fc := range ctx.FileChanges {
		text := fc.Path + "\n" + fc.Content
		found = append(found, s.matchAll(DomainFileChange, fc.Path, text)...)
	}
	for _, co := range ctx.CommandOutputs {
		text := co.Command + "\n" + co.Output
		found = append(found, s.matchAll(DomainCommandOutput, co.Location, text)...)
	}

	kept := found[:0]
	for _, f := range found {
		if f.Confidence >= s.config.ConfidenceThreshold {
			kept = append(kept, f)
		}
	}

	s.mu.Lock()
	for _, f := range kept {
		s.findings.Push(f)
	}
	s.mu.Unlock()

	return kept
}

func (s *Scanner) matchAll(domain Domain, location, text string) []Finding {
	var out []Finding
	groups := [][]pattern{
		credentialPatterns, s.config.ExtraCredential,
		dangerousCommandPatterns, s.config.ExtraDangerous,
		sqlInjectionPatterns,
		pathTraversalPatterns,
		sensitivePathPatterns,
	}
	ts := s.nowSeconds()
	for _, group := range groups {
		for _, p := range group {
			if !p.re.MatchString(text) {
				continue
			}
			out = append(out, Finding{
				ID:          findingID(p.id, p.title, location, ts),
				GuardianID:  p.id,
				Domain:      domain,
				Severity:    p.severity,
				Title:       p.title,
				Description: p.description,
				Location:    location,
				Suggestion:  p.suggestion,
				Confidence:  p.confidence,
				AutoFixable: p.autoFixable,
				Timestamp:   time.Unix(ts, 0).UTC(),
			})
		}
	}
	return out
}

// findingID computes a deterministic hash of guardianId:title:location:timestamp.
func findingID(guardianID, title, location string, timestampUnix int64) string {
	sum := sha256.Sum256([]byte(guardianID + ":" + title + ":" + location + ":" + strconv.FormatInt(timestampUnix, 10)))
	return hex.EncodeToString(sum[:])[:16]
}

// Recent returns the most recently retained findings, oldest first, capped
// at limit (0 means all retained findings).
func (s *Scanner) Recent(limit int) []Finding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findings.Items(limit)
}
