package buffers

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors updated by an Engine. A nil
// *Metrics records nothing.
type Metrics struct {
	solves      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inserted    prometheus.Counter
	variables   *prometheus.GaugeVec
	constraints *prometheus.GaugeVec
	cycles      *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hlsbuf_solves_total",
			Help: "Buffer placement solves by formulation and result status",
		}, []string{"formulation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hlsbuf_solve_duration_seconds",
			Help:    "Wall time spent in the MILP solver",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
		}, []string{"formulation"}),
		inserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hlsbuf_buffers_inserted_total",
			Help: "Buffer components spliced into netlists",
		}),
		variables: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hlsbuf_model_variables",
			Help: "Variables in the last built model",
		}, []string{"formulation"}),
		constraints: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hlsbuf_model_constraints",
			Help: "Constraints in the last built model",
		}, []string{"formulation"}),
		cycles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hlsbuf_model_cycles",
			Help: "Elementary cycles constrained by the last built model",
		}, []string{"formulation"}),
	}
	if reg != nil {
		reg.MustRegister(m.solves, m.duration, m.inserted, m.variables, m.constraints, m.cycles)
	}
	return m
}

func (m *Metrics) observeBuild(f Formulation, vars, cons, cycles int) {
	if m == nil {
		return
	}
	m.variables.WithLabelValues(f.String()).Set(float64(vars))
	m.constraints.WithLabelValues(f.String()).Set(float64(cons))
	m.cycles.WithLabelValues(f.String()).Set(float64(cycles))
}

func (m *Metrics) observeSolve(f Formulation, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.solves.WithLabelValues(f.String(), status).Inc()
	m.duration.WithLabelValues(f.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) observeInserted(n int) {
	if m == nil {
		return
	}
	m.inserted.Add(float64(n))
}
