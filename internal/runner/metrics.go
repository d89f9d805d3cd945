package runner

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the run collectors.
type Metrics struct {
	runsTotal      *prometheus.CounterVec
	runtimeSeconds prometheus.Histogram
}

// NewMetrics creates the run collectors and attaches them to reg. Collectors
// that are already registered are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pcmcirun",
				Name:      "runs_total",
				Help:      "Total number of discovery runs, partitioned by outcome and reason.",
			},
			[]string{"outcome", "reason"},
		),
		runtimeSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "pcmcirun",
				Name:      "run_seconds",
				Help:      "Discovery runtime in seconds, including timed-out attempts.",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
			},
		),
	}

	var are prometheus.AlreadyRegisteredError
	if err := reg.Register(m.runsTotal); err != nil {
		if !errors.As(err, &are) {
			return nil, err
		}
		m.runsTotal = are.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(m.runtimeSeconds); err != nil {
		if !errors.As(err, &are) {
			return nil, err
		}
		m.runtimeSeconds = are.ExistingCollector.(prometheus.Histogram)
	}
	return m, nil
}

// Observe records one finished run.
func (m *Metrics) Observe(res *Result) {
	reason := string(res.Reason)
	if reason == "" {
		reason = "none"
	}
	m.runsTotal.WithLabelValues(string(res.Outcome), reason).Inc()

	runtime := res.Runtime
	if runtime < 0 {
		runtime = 0
	}
	m.runtimeSeconds.Observe(runtime.Seconds())
}
