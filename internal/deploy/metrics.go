package deploy

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespaceConstant = "gitdeploy"
	resultLabelConstant      = "result"
	resultSuccessConstant    = "success"
	resultFailureConstant    = "failure"
	resultNoopConstant       = "noop"
)

var targetDurationBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// Metrics collects deploy counters in a registry owned by one invocation.
type Metrics struct {
	registry       *prometheus.Registry
	targetsTotal   *prometheus.CounterVec
	commitsTotal   prometheus.Counter
	pushesTotal    *prometheus.CounterVec
	targetDuration prometheus.Histogram
}

// NewMetrics registers the deploy collectors in a fresh registry.
func NewMetrics() *Metrics {
	metrics := &Metrics{
		registry: prometheus.NewRegistry(),
		targetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespaceConstant,
			Name:      "targets_total",
			Help:      "Deploy targets processed, by result",
		}, []string{resultLabelConstant}),
		commitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespaceConstant,
			Name:      "commits_total",
			Help:      "Commits created in deploy working copies",
		}),
		pushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespaceConstant,
			Name:      "pushes_total",
			Help:      "Branch pushes attempted, by result",
		}, []string{resultLabelConstant}),
		targetDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespaceConstant,
			Name:      "target_duration_seconds",
			Help:      "Time spent deploying a single target",
			Buckets:   targetDurationBuckets,
		}),
	}
	metrics.registry.MustRegister(metrics.targetsTotal, metrics.commitsTotal, metrics.pushesTotal, metrics.targetDuration)
	return metrics
}

// ObserveOutcome records a finished target.
func (metrics *Metrics) ObserveOutcome(outcome Outcome) {
	if metrics == nil {
		return
	}

	result := resultSuccessConstant
	switch {
	case !outcome.Success:
		result = resultFailureConstant
	case outcome.NothingToCommit:
		result = resultNoopConstant
	}
	metrics.targetsTotal.WithLabelValues(result).Inc()
	metrics.targetDuration.Observe(outcome.Duration.Seconds())

	if outcome.Committed {
		metrics.commitsTotal.Inc()
	}
	if outcome.Pushed {
		metrics.pushesTotal.WithLabelValues(resultSuccessConstant).Inc()
	} else if outcome.Stage == StagePublish && !outcome.Success {
		metrics.pushesTotal.WithLabelValues(resultFailureConstant).Inc()
	}
}

// Gatherer exposes the registry.
func (metrics *Metrics) Gatherer() prometheus.Gatherer {
	return metrics.registry
}

// WriteTextfile writes the metrics in the text exposition format for a node exporter textfile collector.
func (metrics *Metrics) WriteTextfile(path string) error {
	trimmedPath := strings.TrimSpace(path)
	if metrics == nil || len(trimmedPath) == 0 {
		return nil
	}
	return prometheus.WriteToTextfile(trimmedPath, metrics.registry)
}
