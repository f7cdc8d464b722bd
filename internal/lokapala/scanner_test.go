package lokapala

import "testing"

func fixedClock(sec int64) func() int64 {
	return func() int64 { return sec }
}

func TestScan_DetectsCredential(t *testing.T) {
	s := New(Config{}, fixedClock(1000))
	findings := s.Scan(ScanContext{
		CommandOutputs: []CommandOutput{{
			Command:  "env",
			Output:   "OPENAI_KEY=sk-abcdefghijklmnopqrstuvwx",
			Location: "shell:1",
		}},
	})
	if len(findings) != 1 {
		t.Fatalf("len(findings) = %d, want 1: %+v", len(findings), findings)
	}
	if findings[0].GuardianID != "credential.api-key" {
		t.Fatalf("guardianId = %q", findings[0].GuardianID)
	}
	if findings[0].Severity != SeverityCritical {
		t.Fatalf("severity = %q, want critical", findings[0].Severity)
	}
}

func TestScan_DetectsDangerousCommand(t *testing.T) {
	s := New(Config{}, fixedClock(1000))
	findings := s.Scan(ScanContext{
		ToolExecutions: []ToolExecution{{ToolName: "shell", Command: "rm -rf /", Location: "tool:1"}},
	})
	if len(findings) != 1 || findings[0].GuardianID != "command.rm-rf-root" {
		t.Fatalf("findings = %+v", findings)
	}
}

func TestScan_DetectsPathTraversal(t *testing.T) {
	s := New(Config{}, fixedClock(1000))
	findings := s.Scan(ScanContext{
		FileChanges: []FileChange{{Path: "../../etc/passwd", Content: "x"}},
	})
	var ids []string
	for _, f := range findings {
		ids = append(ids, f.GuardianID)
	}
	if !contains(ids, "path.traversal") {
		t.Fatalf("ids = %v, expected path.traversal", ids)
	}
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

func TestScan_FiltersBelowConfidenceThreshold(t *testing.T) {
	s := New(Config{ConfidenceThreshold: 0.99}, fixedClock(1000))
	findings := s.Scan(ScanContext{
		CommandOutputs: []CommandOutput{{Output: "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.abc", Location: "x"}},
	})
	if len(findings) != 0 {
		t.Fatalf("findings = %+v, want none filtered by threshold", findings)
	}
}

func TestFindingID_DeterministicForSameInputs(t *testing.T) {
	s := New(Config{}, fixedClock(42))
	ctx := ScanContext{ToolExecutions: []ToolExecution{{Command: "rm -rf /", Location: "loc"}}}

	f1 := s.Scan(ctx)
	f2 := s.Scan(ctx)
	if len(f1) != 1 || len(f2) != 1 {
		t.Fatalf("expected exactly one finding per scan, got %d and %d", len(f1), len(f2))
	}
	if f1[0].ID != f2[0].ID {
		t.Fatalf("IDs differ for identical inputs: %s vs %s", f1[0].ID, f2[0].ID)
	}
}

func TestScan_NoMatchNoFindings(t *testing.T) {
	s := New(Config{}, fixedClock(1000))
	findings := s.Scan(ScanContext{
		ToolExecutions: []ToolExecution{{Command: "ls -la", Output: "total 0", Location: "x"}},
	})
	if len(findings) != 0 {
		t.Fatalf("findings = %+v, want none", findings)
	}
}

func TestRecent_RingBufferBounded(t *testing.T) {
	s := New(Config{MaxFindings: 2}, fixedClock(1))
	for i := 0; i < 5; i++ {
		s.Scan(ScanContext{ToolExecutions: []ToolExecution{{Command: "rm -rf /", Location: "loc"}}})
	}
	recent := s.Recent(0)
	if len(recent) != 2 {
		t.Fatalf("len(recent) = %d, want 2", len(recent))
	}
}
