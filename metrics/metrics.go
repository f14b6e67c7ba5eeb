package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "realtime"

// Metrics groups the executor and pool collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	submitted   prometheus.Counter
	evicted     prometheus.Counter
	executed    prometheus.Counter
	failed      prometheus.Counter
	discarded   prometheus.Counter
	generations prometheus.Counter
	workers     prometheus.Gauge
}

// New create the collectors and register them to reg when reg is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_submitted_total",
			Help:      "Total number of tasks submitted to the executor.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_evicted_total",
			Help:      "Total number of queued tasks dropped to admit newer ones.",
		}),
		executed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_executed_total",
			Help:      "Total number of tasks run to completion.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_failed_total",
			Help:      "Total number of tasks which panicked.",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_discarded_total",
			Help:      "Total number of queued tasks discarded by shutdown.",
		}),
		generations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_generations_total",
			Help:      "Total number of worker pool generations created.",
		}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_workers",
			Help:      "Number of live workers across pool generations.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.submitted, m.evicted, m.executed, m.failed, m.discarded, m.generations, m.workers)
	}
	return m
}

func (m *Metrics) TaskSubmitted() {
	if m == nil {
		return
	}
	m.submitted.Inc()
}

func (m *Metrics) TasksEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evicted.Add(float64(n))
}

func (m *Metrics) TaskExecuted() {
	if m == nil {
		return
	}
	m.executed.Inc()
}

func (m *Metrics) TaskFailed() {
	if m == nil {
		return
	}
	m.failed.Inc()
}

func (m *Metrics) TasksDiscarded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.discarded.Add(float64(n))
}

func (m *Metrics) GenerationCreated() {
	if m == nil {
		return
	}
	m.generations.Inc()
}

func (m *Metrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.workers.Inc()
}

func (m *Metrics) WorkerExited() {
	if m == nil {
		return
	}
	m.workers.Dec()
}

// Handler serve the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
