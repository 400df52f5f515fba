package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimCollector bundles Prometheus metrics for simulation sweeps and
// exposes a /metrics handler for long-running parameter studies.
type SimCollector struct {
	gatherer prometheus.Gatherer

	TrialsCompleted prometheus.Counter
	TrialsFailed    prometheus.Counter
	TrialsCancelled prometheus.Counter

	PacketsDropped *prometheus.CounterVec
	Infections     prometheus.Counter
	Patches        prometheus.Counter
	Detections     prometheus.Counter

	ChurnRate     prometheus.Histogram
	TrialDuration prometheus.Histogram
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	completed, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_trials_completed_total",
		Help: "Monte Carlo trials that ran to the end of their horizon.",
	}), "sim_trials_completed_total")
	if err != nil {
		return nil, err
	}
	failed, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_trials_failed_total",
		Help: "Trials aborted by setup or provider errors.",
	}), "sim_trials_failed_total")
	if err != nil {
		return nil, err
	}
	cancelled, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_trials_cancelled_total",
		Help: "Trials abandoned by sweep cancellation.",
	}), "sim_trials_cancelled_total")
	if err != nil {
		return nil, err
	}

	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_packets_dropped_total",
		Help: "Packets dropped during routing, labeled by reason.",
	}, []string{"reason"})
	dropped, err = registerCounterVec(reg, dropped, "sim_packets_dropped_total")
	if err != nil {
		return nil, err
	}

	infections, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_infections_total",
		Help: "S->I transitions across all trials.",
	}), "sim_infections_total")
	if err != nil {
		return nil, err
	}
	patches, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_patches_total",
		Help: "Transitions to Recovered driven by ground patching.",
	}), "sim_patches_total")
	if err != nil {
		return nil, err
	}
	detections, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_ids_detections_total",
		Help: "Exploit attempts observed by IDS-enabled nodes.",
	}), "sim_ids_detections_total")
	if err != nil {
		return nil, err
	}

	churn := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_topology_churn_rate",
		Help:    "Edge churn rate between consecutive valid snapshots.",
		Buckets: prometheus.LinearBuckets(0, 0.05, 21),
	})
	churn, err = registerHistogram(reg, churn, "sim_topology_churn_rate")
	if err != nil {
		return nil, err
	}
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_trial_duration_seconds",
		Help:    "Wall-clock duration of one trial.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})
	duration, err = registerHistogram(reg, duration, "sim_trial_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:        gatherer,
		TrialsCompleted: completed,
		TrialsFailed:    failed,
		TrialsCancelled: cancelled,
		PacketsDropped:  dropped,
		Infections:      infections,
		Patches:         patches,
		Detections:      detections,
		ChurnRate:       churn,
		TrialDuration:   duration,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
