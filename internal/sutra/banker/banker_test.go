package banker

import "testing"

func newTextbookBanker(t *testing.T) *Banker {
	t.Helper()
	b := New()
	b.AddResource("A", 10)
	b.AddResource("B", 5)
	b.AddResource("C", 7)

	maxima := map[string]map[string]int{
		"P0": {"A": 7, "B": 5, "C": 3},
		"P1": {"A": 3, "B": 2, "C": 2},
		"P2": {"A": 9, "B": 0, "C": 2},
		"P3": {"A": 2, "B": 2, "C": 2},
		"P4": {"A": 4, "B": 3, "C": 3},
	}
	for pid, m := range maxima {
		if err := b.DeclareMaximum(pid, m); err != nil {
			t.Fatalf("DeclareMaximum(%s): %v", pid, err)
		}
	}

	allocations := map[string]map[string]int{
		"P0": {"A": 0, "B": 1, "C": 0},
		"P1": {"A": 2, "B": 0, "C": 0},
		"P2": {"A": 3, "B": 0, "C": 2},
		"P3": {"A": 2, "B": 1, "C": 1},
		"P4": {"A": 0, "B": 0, "C": 2},
	}
	for pid, alloc := range allocations {
		res := map[string]int{}
		for k, v := range alloc {
			res[k] = v
		}
		if _, err := b.RequestResource(pid, res); err != nil {
			t.Fatalf("seed RequestResource(%s): %v", pid, err)
		}
	}
	return b
}

// TestIsSafeState_TextbookExample reproduces the classic Silberschatz-style
// 5-process/3-resource example, which is known safe (e.g. sequence
// P1, P3, P4, P0, P2).
func TestIsSafeState_TextbookExample(t *testing.T) {
	b := newTextbookBanker(t)
	if !b.IsSafeState() {
		t.Fatal("expected textbook allocation to be a safe state")
	}
}

func TestRequestResource_GrantedWhenSafe(t *testing.T) {
	b := newTextbookBanker(t)
	// P1 requesting {A:1,B:0,C:2} is a classic safe grant from this state.
	res, err := b.RequestResource("P1", map[string]int{"A": 1, "C": 2})
	if err != nil {
		t.Fatalf("RequestResource: %v", err)
	}
	if !res.Granted {
		t.Fatalf("expected grant, got denial reason %q", res.Reason)
	}
	if !b.IsSafeState() {
		t.Fatal("state must remain safe after a granted request")
	}
}

func TestRequestResource_DeniedExceedsNeed(t *testing.T) {
	b := newTextbookBanker(t)
	res, err := b.RequestResource("P0", map[string]int{"A": 8})
	if err != nil {
		t.Fatalf("RequestResource: %v", err)
	}
	if res.Granted || res.Reason != ReasonExceedsNeed {
		t.Fatalf("res = %+v, want denial with ReasonExceedsNeed", res)
	}
}

func TestRequestResource_DeniedExceedsAvailable(t *testing.T) {
	b := newTextbookBanker(t)
	// Available is {A:3,B:3,C:2}; P4's need for A is 4, within need but not available.
	res, err := b.RequestResource("P4", map[string]int{"A": 4})
	if err != nil {
		t.Fatalf("RequestResource: %v", err)
	}
	if res.Granted || res.Reason != ReasonExceedsAvailable {
		t.Fatalf("res = %+v, want denial with ReasonExceedsAvailable", res)
	}
}

func TestRequestResource_DeniedUnsafeLeavesStateUnchanged(t *testing.T) {
	b := newTextbookBanker(t)

	// Classic textbook sequence: grant P1 {A:1,C:2} (Available becomes
	// {A:2,B:3,C:0}); P0 then asking for {B:2} is within its need and within
	// Available, but would leave Available {A:2,B:1,C:0}, from which no
	// process's need fits, so it must be denied and rolled back.
	if setup, err := b.RequestResource("P1", map[string]int{"A": 1, "C": 2}); err != nil || !setup.Granted {
		t.Fatalf("setup grant: %+v, %v", setup, err)
	}
	before := b.Snapshot()

	res, err := b.RequestResource("P0", map[string]int{"B": 2})
	if err != nil {
		t.Fatalf("RequestResource: %v", err)
	}
	if res.Granted || res.Reason != ReasonUnsafeState {
		t.Fatalf("res = %+v, want denial with ReasonUnsafeState", res)
	}
	after := b.Snapshot()
	for res, amt := range before.Available {
		if after.Available[res] != amt {
			t.Fatalf("available[%s] changed after denied request: %d -> %d", res, amt, after.Available[res])
		}
	}
	if after.Allocation["P0"]["B"] != before.Allocation["P0"]["B"] {
		t.Fatalf("allocation[P0][B] changed after denied request: %d -> %d", before.Allocation["P0"]["B"], after.Allocation["P0"]["B"])
	}
}

func TestRequestResource_UnknownProcess(t *testing.T) {
	b := New()
	b.AddResource("A", 10)
	if _, err := b.RequestResource("ghost", map[string]int{"A": 1}); err == nil {
		t.Fatal("expected error for undeclared process")
	}
}

func TestDeclareMaximum_ExceedsTotal(t *testing.T) {
	b := New()
	b.AddResource("A", 5)
	if err := b.DeclareMaximum("P0", map[string]int{"A": 6}); err == nil {
		t.Fatal("expected ErrExceedsTotal")
	}
}

func TestDeclareMaximum_Twice(t *testing.T) {
	b := New()
	b.AddResource("A", 5)
	if err := b.DeclareMaximum("P0", map[string]int{"A": 1}); err != nil {
		t.Fatalf("first declare: %v", err)
	}
	if err := b.DeclareMaximum("P0", map[string]int{"A": 2}); err != ErrAlreadyDeclared {
		t.Fatalf("err = %v, want ErrAlreadyDeclared", err)
	}
}

func TestReleaseResource_ReturnsToAvailable(t *testing.T) {
	b := New()
	b.AddResource("A", 5)
	b.DeclareMaximum("P0", map[string]int{"A": 3})
	res, err := b.RequestResource("P0", map[string]int{"A": 3})
	if err != nil || !res.Granted {
		t.Fatalf("request: %+v, %v", res, err)
	}
	if err := b.ReleaseResource("P0", map[string]int{"A": 3}); err != nil {
		t.Fatalf("release: %v", err)
	}
	snap := b.Snapshot()
	if snap.Available["A"] != 5 {
		t.Fatalf("available[A] = %d, want 5", snap.Available["A"])
	}
	if snap.Need["P0"]["A"] != 3 {
		t.Fatalf("need[P0][A] = %d, want 3", snap.Need["P0"]["A"])
	}
}

func TestRemoveProcess_ReleasesAllocationAndDropsRows(t *testing.T) {
	b := New()
	b.AddResource("A", 5)
	b.DeclareMaximum("P0", map[string]int{"A": 3})
	b.RequestResource("P0", map[string]int{"A": 2})

	b.RemoveProcess("P0")

	snap := b.Snapshot()
	if snap.Available["A"] != 5 {
		t.Fatalf("available[A] = %d, want 5 after removal", snap.Available["A"])
	}
	if _, ok := snap.Max["P0"]; ok {
		t.Fatal("expected P0 row dropped from Max")
	}
	if _, ok := snap.Need["P0"]; ok {
		t.Fatal("expected P0 row dropped from Need")
	}
}

func TestIsSafeState_EmptySystemIsSafe(t *testing.T) {
	b := New()
	if !b.IsSafeState() {
		t.Fatal("empty system must be trivially safe")
	}
}
