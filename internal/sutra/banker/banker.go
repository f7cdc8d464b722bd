// Package banker implements the Banker's Algorithm for deadlock
// prevention among concurrent agents contending for typed resources.
package banker

import (
	"fmt"
	"sort"
	"sync"
)

// DenialReason explains why a request was rejected.
type DenialReason string

const (
	ReasonExceedsNeed      DenialReason = "request exceeds declared need"
	ReasonExceedsAvailable DenialReason = "request exceeds available resources"
	ReasonUnsafeState      DenialReason = "would leave the system in an unsafe state"
)

// RequestResult is the outcome of requestResource.
type RequestResult struct {
	Granted bool
	Reason  DenialReason
}

// State is a point-in-time snapshot of the matrices, useful for diagnostics.
type State struct {
	Available  map[string]int
	Max        map[string]map[string]int
	Allocation map[string]map[string]int
	Need       map[string]map[string]int
}

// ErrUnknownResource is returned for operations referencing an unregistered resource.
var ErrUnknownResource = fmt.Errorf("banker: unknown resource")

// ErrUnknownProcess is returned for operations on a process with no declared maximum.
var ErrUnknownProcess = fmt.Errorf("banker: unknown process")

// ErrAlreadyDeclared is returned when declareMaximum is called twice for the same process.
var ErrAlreadyDeclared = fmt.Errorf("banker: maximum already declared")

// ErrExceedsTotal is returned when a declared maximum exceeds a resource's registered total.
var ErrExceedsTotal = fmt.Errorf("banker: maximum exceeds resource total")

// Banker tracks Available/Max/Allocation/Need matrices and enforces safe-state
// grants via the classic greedy safety sweep.
type Banker struct {
	mu sync.Mutex

	total      map[string]int
	available  map[string]int
	max        map[string]map[string]int
	allocation map[string]map[string]int
	need       map[string]map[string]int
}

// New creates an empty Banker with no registered resources or processes.
func New() *Banker {
	return &Banker{
		total:      make(map[string]int),
		available:  make(map[string]int),
		max:        make(map[string]map[string]int),
		allocation: make(map[string]map[string]int),
		need:       make(map[string]map[string]int),
	}
}

// AddResource registers a resource type with the given total units. Calling
// it again for an existing resource increases total and available by the
// difference.
func (b *Banker) AddResource(name string, totalUnits int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.total[name]
	b.total[name] = totalUnits
	b.available[name] += totalUnits - prev
}

// DeclareMaximum registers process pid's worst-case demand. Required before
// any request from pid. Returns ErrExceedsTotal if demand for any resource
// exceeds that resource's registered total, ErrUnknownResource for an
// unregistered resource, and ErrAlreadyDeclared on a second call for the
// same pid.
func (b *Banker) DeclareMaximum(pid string, demand map[string]int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.max[pid]; exists {
		return ErrAlreadyDeclared
	}
	for res, amt := range demand {
		total, ok := b.total[res]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownResource, res)
		}
		if amt > total {
			return fmt.Errorf("%w: %s (demand %d > total %d)", ErrExceedsTotal, res, amt, total)
		}
	}
	maxCopy := make(map[string]int, len(demand))
	need := make(map[string]int, len(demand))
	for res, amt := range demand {
		maxCopy[res] = amt
		need[res] = amt
	}
	b.max[pid] = maxCopy
	b.allocation[pid] = make(map[string]int)
	b.need[pid] = need
	return nil
}

// RequestResource attempts to grant req units of each named resource to pid.
// The request is rejected outright if it exceeds pid's declared need or the
// currently available supply. Otherwise it is tentatively applied and the
// safety check runs; an unsafe result rolls the tentative grant back.
func (b *Banker) RequestResource(pid string, req map[string]int) (RequestResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	need, ok := b.need[pid]
	if !ok {
		return RequestResult{}, fmt.Errorf("%w: %s", ErrUnknownProcess, pid)
	}

	for res, amt := range req {
		if amt == 0 {
			continue
		}
		if _, ok := b.total[res]; !ok {
			return RequestResult{}, fmt.Errorf("%w: %s", ErrUnknownResource, res)
		}
		if amt > need[res] {
			return RequestResult{Granted: false, Reason: ReasonExceedsNeed}, nil
		}
		if amt > b.available[res] {
			return RequestResult{Granted: false, Reason: ReasonExceedsAvailable}, nil
		}
	}

	for res, amt := range req {
		if amt == 0 {
			continue
		}
		b.available[res] -= amt
		b.allocation[pid][res] += amt
		need[res] -= amt
	}

	if b.isSafeLocked() {
		return RequestResult{Granted: true}, nil
	}

	for res, amt := range req {
		if amt == 0 {
			continue
		}
		b.available[res] += amt
		b.allocation[pid][res] -= amt
		need[res] += amt
	}
	return RequestResult{Granted: false, Reason: ReasonUnsafeState}, nil
}

// ReleaseResource returns rel units of each resource from pid's allocation
// back to Available, clamped so neither allocation nor available goes
// negative.
func (b *Banker) ReleaseResource(pid string, rel map[string]int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	alloc, ok := b.allocation[pid]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProcess, pid)
	}
	for res, amt := range rel {
		if amt <= 0 {
			continue
		}
		if amt > alloc[res] {
			amt = alloc[res]
		}
		alloc[res] -= amt
		b.available[res] += amt
		if need, ok := b.need[pid]; ok {
			need[res] += amt
			if need[res] > b.max[pid][res] {
				need[res] = b.max[pid][res]
			}
		}
	}
	return nil
}

// RemoveProcess releases all of pid's allocation and drops its rows
// entirely. Safe to call on an unknown pid (no-op).
func (b *Banker) RemoveProcess(pid string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if alloc, ok := b.allocation[pid]; ok {
		for res, amt := range alloc {
			b.available[res] += amt
		}
	}
	delete(b.max, pid)
	delete(b.allocation, pid)
	delete(b.need, pid)
}

// IsSafeState reports whether the current matrices admit a completion
// ordering for every process.
func (b *Banker) IsSafeState() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isSafeLocked()
}

// isSafeLocked runs the greedy O(n²·m) safety sweep: repeatedly scan for any
// unfinished process whose Need fits within Work, add its allocation to
// Work, and mark it finished. Safe iff every process eventually finishes.
// Process iteration order is sorted for determinism even though the
// predicate is order-independent for the final yes/no answer.
func (b *Banker) isSafeLocked() bool {
	pids := make([]string, 0, len(b.need))
	for pid := range b.need {
		pids = append(pids, pid)
	}
	sort.Strings(pids)

	work := make(map[string]int, len(b.available))
	for res, amt := range b.available {
		work[res] = amt
	}
	finished := make(map[string]bool, len(pids))

	for progressed := true; progressed; {
		progressed = false
		for _, pid := range pids {
			if finished[pid] {
				continue
			}
			if fitsWithin(b.need[pid], work) {
				for res, amt := range b.allocation[pid] {
					work[res] += amt
				}
				finished[pid] = true
				progressed = true
			}
		}
	}

	for _, pid := range pids {
		if !finished[pid] {
			return false
		}
	}
	return true
}

func fitsWithin(need, work map[string]int) bool {
	for res, amt := range need {
		if amt > work[res] {
			return false
		}
	}
	return true
}

// Snapshot returns a deep copy of the current matrices for diagnostics.
func (b *Banker) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := State{
		Available:  make(map[string]int, len(b.available)),
		Max:        make(map[string]map[string]int, len(b.max)),
		Allocation: make(map[string]map[string]int, len(b.allocation)),
		Need:       make(map[string]map[string]int, len(b.need)),
	}
	for res, amt := range b.available {
		s.Available[res] = amt
	}
	for pid, m := range b.max {
		s.Max[pid] = copyMap(m)
	}
	for pid, m := range b.allocation {
		s.Allocation[pid] = copyMap(m)
	}
	for pid, m := range b.need {
		s.Need[pid] = copyMap(m)
	}
	return s
}

func copyMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
