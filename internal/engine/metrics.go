package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gst_recon",
		Name:      "runs_total",
		Help:      "Reconciliation runs by outcome.",
	}, []string{"mode", "status"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gst_recon",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of reconciliation runs.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"mode"})

	mismatchesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gst_recon",
		Name:      "mismatches_detected_total",
		Help:      "Findings emitted, by type and severity.",
	}, []string{"type", "severity"})

	itcAtRisk = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gst_recon",
		Name:      "itc_at_risk_rupees",
		Help:      "ITC at risk from the most recent run.",
	})
)
