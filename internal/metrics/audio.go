// Package metrics exposes Prometheus metrics for the mixing core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mixOverruns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audionode",
		Subsystem: "mix",
		Name:      "overruns_total",
		Help:      "Mix passes that missed their deadline and reset the schedule",
	}, []string{"device_id"})

	mixPassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "audionode",
		Subsystem: "mix",
		Name:      "pass_duration_seconds",
		Help:      "Wall time spent producing one mix job",
		Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 12),
	}, []string{"device_id"})

	captureOverflows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audionode",
		Subsystem: "capture",
		Name:      "overflows_total",
		Help:      "Capture intervals lost entirely to scheduling slip",
	}, []string{"capturer_id"})

	capturePartialOverflows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audionode",
		Subsystem: "capture",
		Name:      "partial_overflows_total",
		Help:      "Capture intervals only partially serviced",
	}, []string{"capturer_id"})

	activeLinks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "audionode",
		Subsystem: "graph",
		Name:      "active_links",
		Help:      "Directed links currently present in the audio graph",
	})

	devices = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "audionode",
		Subsystem: "graph",
		Name:      "devices",
		Help:      "Devices registered with the route graph by direction",
	}, []string{"direction"})
)

// IncMixOverrun records one missed mix deadline for a device.
func IncMixOverrun(deviceID string) {
	mixOverruns.WithLabelValues(deviceID).Inc()
}

// ObserveMixPass records the wall time of one mix job.
func ObserveMixPass(deviceID string, seconds float64) {
	mixPassDuration.WithLabelValues(deviceID).Observe(seconds)
}

// IncCaptureOverflow records a lost or truncated capture interval.
func IncCaptureOverflow(capturerID string, partial bool) {
	if partial {
		capturePartialOverflows.WithLabelValues(capturerID).Inc()
		return
	}
	captureOverflows.WithLabelValues(capturerID).Inc()
}

// SetActiveLinks publishes the current graph edge count.
func SetActiveLinks(n int) {
	activeLinks.Set(float64(n))
}

// SetDeviceCount publishes the registered device count for a direction.
func SetDeviceCount(direction string, n int) {
	devices.WithLabelValues(direction).Set(float64(n))
}
