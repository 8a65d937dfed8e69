package analysis

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "loopfit"

// Phase label values.
const (
	PhaseGuess = "guess"
	PhaseFit   = "fit"
)

// Fit outcome label values.
const (
	OutcomeConverged    = "converged"
	OutcomeNotConverged = "not_converged"
	OutcomeFailed       = "failed"
)

type metrics struct {
	chunks   *prometheus.CounterVec
	loops    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "chunks_total",
			Help:      "Number of chunks committed, by phase.",
		}, []string{"phase"}),
		loops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "loop_fits_total",
			Help:      "Number of per-loop fits, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "chunk_duration_seconds",
			Help:      "Time spent processing one chunk, by phase.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"phase"}),
	}
	if reg == nil {
		return m, nil
	}

	for i, c := range []prometheus.Collector{m.chunks, m.loops, m.duration} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, err
			}
			// reuse the collectors of an earlier LoopModel on the same registry
			switch i {
			case 0:
				m.chunks = are.ExistingCollector.(*prometheus.CounterVec)
			case 1:
				m.loops = are.ExistingCollector.(*prometheus.CounterVec)
			case 2:
				m.duration = are.ExistingCollector.(*prometheus.HistogramVec)
			}
		}
	}

	return m, nil
}
