// Package metrics exposes Prometheus instrumentation for a session
// channel: command throughput and latency, auth retries, RTP volume
// and loss, and reorder queue behavior. A nil *Collector is safe to use
// throughout the session package, so channels built without metrics
// wiring never need nil checks at call sites.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles every metric a session channel reports. Use New
// to build one backed by a specific registry, or NewUnregistered for
// tests that don't want to touch the default registry.
type Collector struct {
	commandsTotal        *prometheus.CounterVec
	commandDuration      *prometheus.HistogramVec
	authRetriesTotal     prometheus.Counter
	rtpPacketsTotal      prometheus.Counter
	rtpBytesTotal        prometheus.Counter
	rtpLostTotal         prometheus.Counter
	reorderForcedTotal   prometheus.Counter
	pendingCommandsGauge prometheus.Gauge
}

// New builds a Collector and registers it with reg. reg may be any
// prometheus.Registerer, including prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Collector {
	c := newCollector()
	reg.MustRegister(
		c.commandsTotal,
		c.commandDuration,
		c.authRetriesTotal,
		c.rtpPacketsTotal,
		c.rtpBytesTotal,
		c.rtpLostTotal,
		c.reorderForcedTotal,
		c.pendingCommandsGauge,
	)
	return c
}

// NewUnregistered builds a Collector whose metrics are never
// registered with any registry, for tests that only assert on the
// Collector's exposed counters directly.
func NewUnregistered() *Collector {
	return newCollector()
}

func newCollector() *Collector {
	return &Collector{
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rtsp_commands_total",
			Help: "RTSP requests completed, labeled by method and result.",
		}, []string{"method", "result"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rtsp_command_duration_seconds",
			Help:    "Time from request send to matching response, by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		authRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtsp_auth_retries_total",
			Help: "Requests retried after a 401 challenge.",
		}),
		rtpPacketsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtsp_rtp_packets_total",
			Help: "RTP packets delivered to the caller.",
		}),
		rtpBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtsp_rtp_bytes_total",
			Help: "RTP payload bytes delivered to the caller.",
		}),
		rtpLostTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtsp_rtp_lost_total",
			Help: "RTP packets inferred lost from sequence number gaps.",
		}),
		reorderForcedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtsp_reorder_forced_releases_total",
			Help: "Packets released from the reorder queue before their gap closed.",
		}),
		pendingCommandsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rtsp_pending_commands",
			Help: "RTSP requests awaiting a response.",
		}),
	}
}

// ObserveCommand records a completed command's method, outcome label
// ("ok", "error", "timeout", ...), and wall-clock duration in seconds.
func (c *Collector) ObserveCommand(method, result string, seconds float64) {
	if c == nil {
		return
	}
	c.commandsTotal.WithLabelValues(method, result).Inc()
	c.commandDuration.WithLabelValues(method).Observe(seconds)
}

// IncAuthRetry records one request retried after a 401 challenge.
func (c *Collector) IncAuthRetry() {
	if c == nil {
		return
	}
	c.authRetriesTotal.Inc()
}

// ObserveRTPPacket records one delivered RTP packet of payloadBytes size.
func (c *Collector) ObserveRTPPacket(payloadBytes int) {
	if c == nil {
		return
	}
	c.rtpPacketsTotal.Inc()
	c.rtpBytesTotal.Add(float64(payloadBytes))
}

// AddRTPLost records n packets inferred lost from a sequence number gap.
func (c *Collector) AddRTPLost(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.rtpLostTotal.Add(float64(n))
}

// IncReorderForcedRelease records one packet released from the
// reorder queue before its predecessor gap was ever filled.
func (c *Collector) IncReorderForcedRelease() {
	if c == nil {
		return
	}
	c.reorderForcedTotal.Inc()
}

// SetPendingCommands reports the current size of the pending command table.
func (c *Collector) SetPendingCommands(n int) {
	if c == nil {
		return
	}
	c.pendingCommandsGauge.Set(float64(n))
}
