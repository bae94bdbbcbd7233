package mirror

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// lastPushTimestamp is a Gauge that captures the timestamp of the last
	// successful mirror update
	lastPushTimestamp *prometheus.GaugeVec
	// pushCount is a Counter vector of mirror updates
	pushCount *prometheus.CounterVec
	// pushLatency is a Histogram vector that keeps track of mirror update durations
	pushLatency *prometheus.HistogramVec
	// stepFailures is a Counter vector of failed update steps
	stepFailures *prometheus.CounterVec
)

// EnableMetrics will enable metrics collection for mirror updates.
// Available metrics are...
//   - git_mirror_push_last_success_timestamp - (tags: mirror)
//     A Gauge that captures the Timestamp of the last successful update per mirror.
//   - git_mirror_push_count - (tags: mirror,success)
//     A Counter for each mirror update, tagged with the result (success=true|false)
//   - git_mirror_push_latency_seconds - (tags: mirror)
//     A Histogram that keeps track of the update latency per mirror.
//   - git_mirror_push_step_failures_total - (tags: step)
//     A Counter of failures per update step (clone, remote add, fetch, push)
func EnableMetrics(metricsNamespace string, registerer prometheus.Registerer) {
	lastPushTimestamp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "git_mirror_push_last_success_timestamp",
		Help:      "Timestamp of the last successful mirror update",
	},
		[]string{
			// name of the mirror, source and destination repository names
			"mirror",
		},
	)

	pushCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "git_mirror_push_count",
		Help:      "Count of mirror update operations",
	},
		[]string{
			"mirror",
			// Whether the update was successful or not
			"success",
		},
	)

	pushLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "git_mirror_push_latency_seconds",
		Help:      "Latency for mirror update",
		Buckets:   []float64{0.5, 1, 5, 10, 20, 30, 60, 90, 120, 150, 300},
	},
		[]string{
			"mirror",
		},
	)

	stepFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "git_mirror_push_step_failures_total",
		Help:      "Count of failed mirror update steps",
	},
		[]string{
			"step",
		},
	)

	registerer.MustRegister(
		lastPushTimestamp,
		pushCount,
		pushLatency,
		stepFailures,
	)
}

// recordMirrorUpdate records a mirror update attempt by updating all the
// relevant metrics
func recordMirrorUpdate(mirror string, err error) {
	// if metrics not enabled return
	if lastPushTimestamp == nil || pushCount == nil || stepFailures == nil {
		return
	}
	if err == nil {
		lastPushTimestamp.With(prometheus.Labels{
			"mirror": mirror,
		}).Set(float64(time.Now().Unix()))
	}
	if step, ok := FailedStep(err); ok {
		stepFailures.WithLabelValues(string(step)).Inc()
	}
	pushCount.With(prometheus.Labels{
		"mirror":  mirror,
		"success": strconv.FormatBool(err == nil),
	}).Inc()
}

func updateLatency(mirror string, start time.Time) {
	// if metrics not enabled return
	if pushLatency == nil {
		return
	}
	pushLatency.WithLabelValues(mirror).Observe(time.Since(start).Seconds())
}
