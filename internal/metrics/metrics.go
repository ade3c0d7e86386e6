package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all frame bus metrics
type Metrics struct {
	// Loop counters
	FramesCaptured  atomic.Uint64
	FramesPublished atomic.Uint64
	FramesDropped   atomic.Uint64 // credit timeouts
	CaptureMisses   atomic.Uint64 // empty frames or source errors
	OversizeFrames  atomic.Uint64
	SemaphoreErrors atomic.Uint64

	// Codec counters
	FramesCompressed     atomic.Uint64
	CompressionFallbacks atomic.Uint64
	BytesRaw             atomic.Uint64
	BytesStored          atomic.Uint64

	// Last published slot and its age
	CurrentSlot   atomic.Uint64
	LastPublishNs atomic.Int64

	// Bus running (0/1)
	Running atomic.Uint64

	publishLatency prometheus.Histogram

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		publishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grabber_publish_latency_seconds",
			Help:    "Time from frame capture to ready signal",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	m.counter("grabber_frames_captured_total", "Frames obtained from the source", &m.FramesCaptured)
	m.counter("grabber_frames_published_total", "Frames published to readers", &m.FramesPublished)
	m.counter("grabber_frames_dropped_total", "Frames dropped because no reader returned a credit in time", &m.FramesDropped)
	m.counter("grabber_capture_misses_total", "Empty frames or source errors", &m.CaptureMisses)
	m.counter("grabber_oversize_frames_total", "Frames larger than the slot capacity", &m.OversizeFrames)
	m.counter("grabber_semaphore_errors_total", "Semaphore failures other than timeouts", &m.SemaphoreErrors)
	m.counter("grabber_frames_compressed_total", "Frames stored compressed", &m.FramesCompressed)
	m.counter("grabber_compression_fallbacks_total", "Frames stored verbatim because compression did not fit", &m.CompressionFallbacks)
	m.counter("grabber_bytes_raw_total", "Raw frame bytes encoded", &m.BytesRaw)
	m.counter("grabber_bytes_stored_total", "Bytes written into slots", &m.BytesStored)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "grabber_current_slot",
			Help: "Slot index of the last published frame",
		},
		func() float64 { return float64(m.CurrentSlot.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "grabber_running",
			Help: "Bus running (0=stopped, 1=running)",
		},
		func() float64 { return float64(m.Running.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "grabber_compression_ratio",
			Help: "Stored bytes divided by raw bytes",
		},
		m.CompressionRatio,
	))

	m.registry.MustRegister(m.publishLatency)
}

// ObservePublish records a successful publish of a frame captured at captureTime
func (m *Metrics) ObservePublish(slot int, captureTime time.Time) {
	m.FramesPublished.Add(1)
	m.CurrentSlot.Store(uint64(slot))
	now := time.Now()
	m.LastPublishNs.Store(now.UnixNano())
	m.publishLatency.Observe(now.Sub(captureTime).Seconds())
}

// ObserveEncode records the outcome of encoding one frame
func (m *Metrics) ObserveEncode(raw, stored int, compressed, wanted bool) {
	m.BytesRaw.Add(uint64(raw))
	m.BytesStored.Add(uint64(stored))
	switch {
	case compressed:
		m.FramesCompressed.Add(1)
	case wanted:
		m.CompressionFallbacks.Add(1)
	}
}

// CompressionRatio returns stored/raw bytes, 1 before anything was encoded
func (m *Metrics) CompressionRatio() float64 {
	raw := m.BytesRaw.Load()
	if raw == 0 {
		return 1
	}
	return float64(m.BytesStored.Load()) / float64(raw)
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
