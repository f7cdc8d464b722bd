package kaala

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"
)

// Manager owns the agent forest: it mediates registration, heartbeats,
// healing, and cascade-kill, and enforces depth and budget invariants.
//
// All public operations are synchronous under an internal mutex — they
// never suspend. Callers that want fire-and-forget semantics (e.g. the
// periodic sweep) must hand off to a goroutine themselves.
type Manager struct {
	mu             sync.RWMutex
	config         Config
	agents         map[string]*Agent
	disposed       bool
	onStatusChange StatusChangeFunc
	logger         *slog.Logger
	metrics        *metrics
}

// New creates a lifecycle manager with the given config. Zero-valued fields
// in cfg are replaced with documented defaults.
func New(cfg Config, logger *slog.Logger) *Manager {
	cfg.applyDefaults()
	return &Manager{
		config:  cfg,
		agents:  make(map[string]*Agent),
		logger:  logger,
		metrics: newMetrics(),
	}
}

// OnStatusChange registers a callback fired whenever an agent's observable
// status actually changes. Only one callback is kept; call again to replace.
//
// The callback must not call back into the manager — it runs while the
// manager's lock may still be logically held by the calling operation and a
// re-entrant call would deadlock (see spec §5, handler contract).
func (m *Manager) OnStatusChange(fn StatusChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStatusChange = fn
}

// SetMaxAgentDepth clamps and updates the depth ceiling at runtime.
func (m *Manager) SetMaxAgentDepth(depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if depth <= 0 || depth > DefaultMaxDepth {
		depth = DefaultMaxDepth
	}
	m.config.MaxAgentDepth = depth
}

// Dispose marks the manager inert. All subsequent operations return
// ErrDisposed.
func (m *Manager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disposed = true
}

func (m *Manager) transition(a *Agent, to Status) {
	from := a.Status
	a.Status = to
	if from != to && m.onStatusChange != nil {
		m.onStatusChange(a.ID, from, to)
	}
}

// RegisterAgent inserts a new agent into the forest.
func (m *Manager) RegisterAgent(hb Heartbeat) (*Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return nil, ErrDisposed
	}
	if hb.ID == "" {
		return nil, fmt.Errorf("kaala: heartbeat requires an id")
	}
	if _, exists := m.agents[hb.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, hb.ID)
	}

	depth := 0
	if hb.ParentID != "" {
		parent, ok := m.agents[hb.ParentID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownParent, hb.ParentID)
		}
		if parent.Status.Terminal() {
			return nil, fmt.Errorf("%w: %s", ErrParentTerminal, hb.ParentID)
		}
		depth = parent.Depth + 1
	}
	if depth > m.config.MaxAgentDepth {
		return nil, fmt.Errorf("%w: depth %d > %d", ErrMaxDepth, depth, m.config.MaxAgentDepth)
	}

	budget := hb.TokenBudget
	if budget <= 0 && hb.ParentID != "" {
		budget = m.computeChildBudgetLocked(hb.ParentID)
	}

	now := time.Now()
	agent := &Agent{
		ID:          hb.ID,
		ParentID:    hb.ParentID,
		Depth:       depth,
		Status:      StatusAlive,
		LastBeat:    now,
		StartedAt:   now,
		TokenBudget: budget,
		Purpose:     hb.Purpose,
	}
	m.agents[hb.ID] = agent
	m.refreshMetricsLocked()
	if m.logger != nil {
		m.logger.Debug("kaala: agent registered", "id", hb.ID, "parent", hb.ParentID, "depth", depth)
	}
	snap := agent.Snapshot()
	return &snap, nil
}

// RecordHeartbeat updates LastBeat and counters for an agent. It is a no-op
// for unknown IDs. If the agent was stale it transitions back to alive.
func (m *Manager) RecordHeartbeat(id string, turnDelta, tokenUsage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return ErrDisposed
	}
	a, ok := m.agents[id]
	if !ok {
		return nil
	}
	if a.Status.Terminal() {
		return nil
	}

	a.LastBeat = time.Now()
	if turnDelta > 0 {
		a.TurnCount += turnDelta
	}
	if tokenUsage > 0 {
		a.TokenUsage = tokenUsage
	}
	if a.Status == StatusStale {
		a.StaleReason = ""
		m.transition(a, StatusAlive)
	}
	return nil
}

// MarkCompleted is an idempotent explicit terminal transition.
func (m *Manager) MarkCompleted(id string) error {
	return m.markTerminal(id, StatusCompleted)
}

// MarkError is an idempotent explicit terminal transition.
func (m *Manager) MarkError(id string) error {
	return m.markTerminal(id, StatusError)
}

func (m *Manager) markTerminal(id string, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return ErrDisposed
	}
	a, ok := m.agents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	if a.Status.Terminal() {
		return nil
	}
	m.transition(a, to)
	m.refreshMetricsLocked()
	return nil
}

// ReportStuck moves an agent from alive to stale. No-op from any other state.
func (m *Manager) ReportStuck(id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return ErrDisposed
	}
	a, ok := m.agents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	if a.Status != StatusAlive {
		return nil
	}
	a.StaleReason = reason
	m.transition(a, StatusStale)
	m.refreshMetricsLocked()
	return nil
}

// isProperAncestorLocked walks the parentId chain from target upward,
// bounded at MAX_DEPTH+1 as a safety net against any cycle (invariant:
// cycles are impossible because parentId is immutable after creation).
func (m *Manager) isProperAncestorLocked(ancestorID, targetID string) bool {
	if ancestorID == "" || targetID == "" || ancestorID == targetID {
		return false
	}
	cur, ok := m.agents[targetID]
	if !ok {
		return false
	}
	limit := m.config.MaxAgentDepth + 1
	for i := 0; i < limit; i++ {
		if cur.ParentID == "" {
			return false
		}
		if cur.ParentID == ancestorID {
			return true
		}
		next, ok := m.agents[cur.ParentID]
		if !ok {
			return false
		}
		cur = next
	}
	return false
}

// HealAgent restores a stale/error agent to alive. Allowed only when healer
// is a proper ancestor of target.
func (m *Manager) HealAgent(healerID, targetID, reason string) (HealResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return HealResult{}, ErrDisposed
	}
	target, ok := m.agents[targetID]
	if !ok {
		return HealResult{}, fmt.Errorf("%w: %s", ErrUnknownAgent, targetID)
	}
	if _, ok := m.agents[healerID]; !ok {
		return HealResult{}, fmt.Errorf("%w: %s", ErrUnknownAgent, healerID)
	}
	if !m.isProperAncestorLocked(healerID, targetID) {
		return HealResult{Success: false, Reason: "healer is not an ancestor of target"}, nil
	}
	if target.Status != StatusStale && target.Status != StatusError {
		return HealResult{Success: false, Reason: "target is not in a healable state"}, nil
	}
	target.StaleReason = ""
	m.transition(target, StatusAlive)
	target.LastBeat = time.Now()
	m.refreshMetricsLocked()
	if m.logger != nil {
		m.logger.Info("kaala: agent healed", "healer", healerID, "target", targetID, "reason", reason)
	}
	return HealResult{Success: true}, nil
}

// KillAgent kills target's entire subtree bottom-up (post-order). Allowed
// only when killer is a proper ancestor of target and target isn't already
// killed. Subtree members that are already dead, completed or killed keep
// their status and are not counted in KilledIDs or FreedTokens.
func (m *Manager) KillAgent(killerID, targetID string) (KillResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return KillResult{}, ErrDisposed
	}
	target, ok := m.agents[targetID]
	if !ok {
		return KillResult{}, fmt.Errorf("%w: %s", ErrUnknownAgent, targetID)
	}
	if target.Status == StatusKilled {
		return KillResult{Success: false, Reason: "target already killed"}, nil
	}
	if !m.isProperAncestorLocked(killerID, targetID) {
		return KillResult{Success: false, Reason: "killer is not an ancestor of target"}, nil
	}

	order := m.postOrderSubtreeLocked(targetID)
	freed := 0
	killedIDs := make([]string, 0, len(order))
	for _, id := range order {
		a := m.agents[id]
		if a.Status == StatusKilled || a.Status == StatusDead || a.Status == StatusCompleted {
			continue
		}
		diff := a.TokenBudget - a.TokenUsage
		if diff > 0 {
			freed += diff
		}
		m.transition(a, StatusKilled)
		killedIDs = append(killedIDs, id)
	}
	m.refreshMetricsLocked()
	if m.logger != nil {
		m.logger.Info("kaala: cascade kill", "killer", killerID, "target", targetID, "count", len(killedIDs), "freed_tokens", freed)
	}
	return KillResult{Success: true, KilledIDs: killedIDs, FreedTokens: freed}, nil
}

// postOrderSubtreeLocked returns rootID's subtree (including rootID) in
// bottom-up (post-order) traversal order.
func (m *Manager) postOrderSubtreeLocked(rootID string) []string {
	children := make(map[string][]string, len(m.agents))
	for id, a := range m.agents {
		if a.ParentID != "" {
			children[a.ParentID] = append(children[a.ParentID], id)
		}
	}
	for _, kids := range children {
		sort.Strings(kids)
	}

	var order []string
	var visit func(id string)
	visit = func(id string) {
		for _, c := range children[id] {
			visit(c)
		}
		order = append(order, id)
	}
	visit(rootID)
	return order
}

// CanSpawn reports whether parentID may spawn a new child right now.
func (m *Manager) CanSpawn(parentID string) SpawnCheck {
	m.mu.RLock()
	defer m.mu.RUnlock()

	parent, ok := m.agents[parentID]
	if !ok {
		return SpawnCheck{Allowed: false, Reason: "unknown parent"}
	}
	if parent.Status != StatusAlive {
		return SpawnCheck{Allowed: false, Reason: "parent is not alive"}
	}
	if parent.Depth >= m.config.MaxAgentDepth {
		return SpawnCheck{Allowed: false, Reason: "parent is at max depth"}
	}

	living := 0
	for _, a := range m.agents {
		if a.ParentID == parentID && !a.Status.Terminal() {
			living++
		}
	}
	if living >= m.config.MaxSubAgents {
		return SpawnCheck{Allowed: false, Reason: "parent has reached max sub-agents"}
	}

	remaining := parent.TokenBudget - parent.TokenUsage
	if remaining < m.config.MinChildBudget {
		return SpawnCheck{Allowed: false, Reason: "parent has insufficient remaining budget"}
	}
	return SpawnCheck{Allowed: true}
}

// ComputeChildBudget returns floor(parent.tokenBudget * decayFactor), or 0
// for an unknown parent.
func (m *Manager) ComputeChildBudget(parentID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.computeChildBudgetLocked(parentID)
}

func (m *Manager) computeChildBudgetLocked(parentID string) int {
	parent, ok := m.agents[parentID]
	if !ok {
		return 0
	}
	return int(math.Floor(float64(parent.TokenBudget) * m.config.DecayFactor))
}

// HealTree runs the periodic sweep: dead-reaps stale-expired agents,
// transitions alive agents past staleThreshold to stale, kills agents over
// budget, and resolves orphans per the configured policy. The sweep never
// leaves the tree half-updated: any per-agent callback panic recovers and
// is logged, the remaining agents are still processed.
func (m *Manager) HealTree() (SweepReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return SweepReport{}, ErrDisposed
	}

	var report SweepReport
	now := time.Now()

	for id, a := range m.agents {
		if a.Status.Terminal() {
			continue
		}
		m.safeCall(func() {
			if now.Sub(a.LastBeat) > m.config.DeadThreshold {
				m.transition(a, StatusDead)
				report.TransitionedDead = append(report.TransitionedDead, id)
			} else if a.Status == StatusAlive && now.Sub(a.LastBeat) > m.config.StaleThreshold {
				a.StaleReason = "heartbeat timeout"
				m.transition(a, StatusStale)
				report.TransitionedStale = append(report.TransitionedStale, id)
			}
		})
	}

	for id, a := range m.agents {
		if !a.Status.Terminal() && a.TokenBudget > 0 && a.TokenUsage > a.TokenBudget {
			m.safeCall(func() {
				m.transition(a, StatusKilled)
				report.KilledOverBudget = append(report.KilledOverBudget, id)
			})
		}
	}

	m.resolveOrphansLocked(&report)

	reaped := make([]string, 0)
	for id, a := range m.agents {
		if a.Status == StatusDead {
			reaped = append(reaped, id)
		}
	}
	sort.Strings(reaped)
	for _, id := range reaped {
		delete(m.agents, id)
	}
	report.Reaped = reaped

	m.refreshMetricsLocked()
	return report, nil
}

func (m *Manager) resolveOrphansLocked(report *SweepReport) {
	for id, a := range m.agents {
		if a.ParentID == "" || a.Status.Terminal() {
			continue
		}
		if _, ok := m.agents[a.ParentID]; ok {
			continue
		}
		// orphan: parent is gone (reaped or never registered in this pass).
		switch m.config.OrphanPolicy {
		case OrphanPromoteToRoot:
			a.ParentID = ""
			a.Depth = 0
			report.OrphansHandled = append(report.OrphansHandled, id)
		case OrphanKill:
			m.transition(a, StatusKilled)
			report.OrphansHandled = append(report.OrphansHandled, id)
		case OrphanCascade:
			fallthrough
		default:
			for _, sid := range m.postOrderSubtreeLocked(id) {
				sa := m.agents[sid]
				if !sa.Status.Terminal() {
					m.transition(sa, StatusKilled)
				}
			}
			report.OrphansHandled = append(report.OrphansHandled, id)
		}
	}
}

// safeCall runs fn and recovers any panic, logging it. This guarantees a
// sweep never aborts partway through due to one agent's callback failing.
func (m *Manager) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if m.logger != nil {
				m.logger.Error("kaala: sweep callback panicked", "recover", r)
			}
		}
	}()
	fn()
}

// GetTreeHealth returns a snapshot summary of the whole forest.
func (m *Manager) GetTreeHealth() TreeHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	health := TreeHealth{}
	agents := make([]Agent, 0, len(m.agents))
	for _, a := range m.agents {
		agents = append(agents, a.Snapshot())
		health.TotalAgents++
		if a.Status == StatusAlive {
			health.AliveAgents++
		}
		if a.Depth > health.MaxDepth {
			health.MaxDepth = a.Depth
		}
		if a.TokenUsage > health.HighestTokenUsage {
			health.HighestTokenUsage = a.TokenUsage
		}
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	health.Agents = agents
	return health
}

// Get returns a snapshot of a single agent.
func (m *Manager) Get(id string) (Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return Agent{}, false
	}
	return a.Snapshot(), true
}
