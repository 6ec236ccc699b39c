// Package metrics exports stage cache counters in Prometheus format.
//
// A *Metrics satisfies manifest.Recorder and fingerprint.Observer so it can be
// handed directly to the decider and hasher. A nil *Metrics records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "audiopipe"

// Metrics holds the stage cache collectors.
type Metrics struct {
	Decisions           *prometheus.CounterVec
	FingerprintBytes    prometheus.Counter
	FingerprintDuration prometheus.Histogram
	ManifestWrites      *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_cache_decisions_total",
				Help:      "Stage reuse decisions by step, result and reason",
			},
			[]string{"step", "result", "reason"},
		),
		FingerprintBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fingerprint_bytes_total",
				Help:      "Bytes hashed while fingerprinting stage inputs",
			},
		),
		FingerprintDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fingerprint_duration_seconds",
				Help:      "Time spent fingerprinting a single input file",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),
		ManifestWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "manifest_writes_total",
				Help:      "Manifest persistence attempts by result",
			},
			[]string{"result"},
		),
	}
}

// RecordDecision counts a reuse decision.
func (m *Metrics) RecordDecision(step string, skip bool, reason string) {
	if m == nil {
		return
	}
	result := "miss"
	if skip {
		result = "hit"
	}
	m.Decisions.WithLabelValues(step, result, reason).Inc()
}

// ObserveFingerprint records one hashed file.
func (m *Metrics) ObserveFingerprint(bytes int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.FingerprintBytes.Add(float64(bytes))
	m.FingerprintDuration.Observe(elapsed.Seconds())
}

// RecordManifestWrite counts a manifest write; err nil means success.
func (m *Metrics) RecordManifestWrite(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ManifestWrites.WithLabelValues(result).Inc()
}

// WriteTextfile dumps everything gathered by g to path in the node_exporter
// textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
