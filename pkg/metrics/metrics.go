// Package metrics exposes upload progress as Prometheus gauges for the
// status HTTP server's /metrics endpoint (§4.8's Implementation note). The
// Progress Projection stays pure; only this package's poller performs the
// side effect of publishing it to a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/uploadkit/engine/pkg/progress"
)

// Metrics provides Prometheus gauges for session progress. All methods are
// nil-safe: calls on a nil *Metrics are no-ops, so callers can wire metrics
// optionally without guarding every call site.
type Metrics struct {
	BytesUploaded      *prometheus.GaugeVec
	PartsUploaded      *prometheus.GaugeVec
	OverallProgressPct *prometheus.GaugeVec
	SessionsActive     prometheus.Gauge
}

// New creates and registers progress metrics with reg. If reg is nil,
// metrics are created but not registered (useful for testing).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BytesUploaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "uploadkit",
			Subsystem: "session",
			Name:      "bytes_uploaded",
			Help:      "Bytes uploaded so far for a session",
		}, []string{"session_id"}),
		PartsUploaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "uploadkit",
			Subsystem: "session",
			Name:      "parts_uploaded",
			Help:      "Parts uploaded so far for a session",
		}, []string{"session_id"}),
		OverallProgressPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "uploadkit",
			Subsystem: "session",
			Name:      "overall_progress_percent",
			Help:      "Overall upload progress of a session, 0-100",
		}, []string{"session_id"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "uploadkit",
			Subsystem: "session",
			Name:      "active",
			Help:      "Current number of non-terminal upload sessions",
		}),
	}

	if reg != nil {
		collectors := []prometheus.Collector{
			m.BytesUploaded,
			m.PartsUploaded,
			m.OverallProgressPct,
			m.SessionsActive,
		}
		for _, c := range collectors {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(err)
				}
			}
		}
	}

	return m
}

// Publish writes one poll's worth of snapshots to the gauges, replacing
// whatever values were there before (the per-session vectors are Reset
// first, so a session that left the active set stops being reported).
func (m *Metrics) Publish(snapshots []progress.Snapshot) {
	if m == nil {
		return
	}

	m.BytesUploaded.Reset()
	m.PartsUploaded.Reset()
	m.OverallProgressPct.Reset()
	m.SessionsActive.Set(float64(len(snapshots)))
	for _, snap := range snapshots {
		labels := prometheus.Labels{"session_id": snap.SessionID}
		m.BytesUploaded.With(labels).Set(float64(snap.UploadedBytes))
		m.PartsUploaded.With(labels).Set(float64(snap.UploadedParts))
		m.OverallProgressPct.With(labels).Set(snap.OverallProgress)
	}
}

// Forget removes a terminal session's label set from the gauges so it
// doesn't linger in /metrics output forever.
func (m *Metrics) Forget(sessionID string) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"session_id": sessionID}
	m.BytesUploaded.Delete(labels)
	m.PartsUploaded.Delete(labels)
	m.OverallProgressPct.Delete(labels)
}
