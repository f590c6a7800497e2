// Package metrics exposes Prometheus instrumentation for rollcall.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every collector and the registry they are registered on.
type Manager struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	matches      *prometheus.CounterVec
	inference    *prometheus.HistogramVec
	frames       prometheus.Counter
	captures     prometheus.Counter
	present      prometheus.Gauge
	storeErrors  prometheus.Counter
	regionErrors prometheus.Counter
}

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace overrides the metric namespace (default "rollcall").
func WithNamespace(ns string) Option {
	return func(m *Manager) {
		if ns != "" {
			m.namespace = ns
		}
	}
}

// WithHistogramBuckets overrides the inference latency buckets.
func WithHistogramBuckets(b []float64) Option {
	return func(m *Manager) {
		if len(b) > 0 {
			m.buckets = b
		}
	}
}

// WithRegistry registers collectors on r instead of a fresh registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// NewManager builds a Manager on its own registry so tests can create as many as they like.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "rollcall",
		buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}

	f := promauto.With(m.registry)
	m.matches = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "matches_total",
		Help:      "Match decisions by status.",
	}, []string{"status"})
	m.inference = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "inference_seconds",
		Help:      "Latency of collaborator inference calls.",
		Buckets:   m.buckets,
	}, []string{"stage"})
	m.frames = f.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "frames_total",
		Help:      "Frames pulled by live sessions.",
	})
	m.captures = f.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "captures_total",
		Help:      "Manual captures processed by live sessions.",
	})
	m.present = f.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "present_people",
		Help:      "Size of the current session present set.",
	})
	m.storeErrors = f.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "store_errors_total",
		Help:      "Failed enrollment persistence writes.",
	})
	m.regionErrors = f.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "region_errors_total",
		Help:      "Per-detection failures isolated by the pipeline.",
	})
	return m
}

// Nop returns a Manager for callers that do not export metrics.
func Nop() *Manager { return NewManager() }

func (m *Manager) ObserveMatch(status string) {
	m.matches.WithLabelValues(status).Inc()
}

// ObserveInference records how long a detect/faces stage took since start.
func (m *Manager) ObserveInference(stage string, start time.Time) {
	m.inference.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Manager) IncFrames()       { m.frames.Inc() }
func (m *Manager) IncCaptures()     { m.captures.Inc() }
func (m *Manager) IncStoreErrors()  { m.storeErrors.Inc() }
func (m *Manager) IncRegionErrors() { m.regionErrors.Inc() }
func (m *Manager) SetPresent(n int) { m.present.Set(float64(n)) }

// Registry exposes the underlying registry, mainly for tests.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
