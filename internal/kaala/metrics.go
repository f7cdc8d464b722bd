package kaala

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the Prometheus gauges summarizing the forest, recomputed by
// refreshMetricsLocked after the manager's mutating operations. Kept in a
// private registry rather than the default one so multiple managers in
// tests don't collide; callers that want the gauges scraped serve
// Registry() (e.g. via promhttp.HandlerFor).
type metrics struct {
	agentsAlive  prometheus.Gauge
	agentsStale  prometheus.Gauge
	agentsTotal  prometheus.Gauge
	treeMaxDepth prometheus.Gauge
	registry     *prometheus.Registry
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	m := &metrics{
		agentsAlive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kaala_agents_alive",
			Help: "Number of agents currently alive.",
		}),
		agentsStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kaala_agents_stale",
			Help: "Number of agents currently stale.",
		}),
		agentsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kaala_agents_total",
			Help: "Total number of agents tracked in the forest.",
		}),
		treeMaxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kaala_tree_max_depth",
			Help: "Maximum depth observed across the agent forest.",
		}),
		registry: reg,
	}
	reg.MustRegister(m.agentsAlive, m.agentsStale, m.agentsTotal, m.treeMaxDepth)
	return m
}

// Registry exposes the manager's private Prometheus registry so a caller
// can gather it into a process-wide registry or HTTP handler.
func (m *Manager) Registry() *prometheus.Registry {
	return m.metrics.registry
}

// refreshMetricsLocked recomputes the gauges from the current forest.
// Must be called with m.mu held.
func (m *Manager) refreshMetricsLocked() {
	alive, stale, maxDepth := 0, 0, 0
	for _, a := range m.agents {
		switch a.Status {
		case StatusAlive:
			alive++
		case StatusStale:
			stale++
		}
		if a.Depth > maxDepth {
			maxDepth = a.Depth
		}
	}
	m.metrics.agentsAlive.Set(float64(alive))
	m.metrics.agentsStale.Set(float64(stale))
	m.metrics.agentsTotal.Set(float64(len(m.agents)))
	m.metrics.treeMaxDepth.Set(float64(maxDepth))
}
