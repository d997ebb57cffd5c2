// Package metrics defines the Prometheus instruments exported by the streamer
// and the client.
//
// Instruments are registered through promauto against an injectable
// Registerer, so tests get an isolated registry and processes can share one
// registry with the status server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "framestream"

// Frame drop reasons used as label values.
const (
	DropOverflow     = "overflow"
	DropStale        = "stale"
	DropStalePartial = "stale_partial"
	DropSaturated    = "saturated"
)

// Metrics holds every instrument.
type Metrics struct {
	registry *prometheus.Registry

	// Streamer
	PacketsSent     prometheus.Counter
	PacketsResent   prometheus.Counter
	BurstsSent      prometheus.Counter
	PausedTicks     prometheus.Counter
	ControlReceived *prometheus.CounterVec
	SendErrors      *prometheus.CounterVec
	StreamerPaused  prometheus.Gauge
	NextSequence    prometheus.Gauge

	// Client
	PacketsReceived prometheus.Counter
	FramesPromoted  prometheus.Counter
	FramesDropped   *prometheus.CounterVec
	FramesPlayed    prometheus.Counter
	Underruns       prometheus.Counter
	ControlSent     *prometheus.CounterVec
	ReadyFrames     prometheus.Gauge
	PendingFrames   prometheus.Gauge
	CurrentFrame    prometheus.Gauge
	TransitSeconds  prometheus.Histogram

	// Shared
	MalformedDatagrams prometheus.Counter
}

// New registers all instruments with reg. A nil reg creates a private
// registry, which Registry then returns.
func New(reg prometheus.Registerer) *Metrics {
	var own *prometheus.Registry
	if reg == nil {
		own = prometheus.NewRegistry()
		reg = own
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: own,

		PacketsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "streamer",
			Name:      "packets_sent_total",
			Help:      "Data packets sent in bursts",
		}),
		PacketsResent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "streamer",
			Name:      "packets_retransmitted_total",
			Help:      "Data packets sent through the retransmit operation",
		}),
		BurstsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "streamer",
			Name:      "bursts_sent_total",
			Help:      "Send ticks that emitted a burst",
		}),
		PausedTicks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "streamer",
			Name:      "paused_ticks_total",
			Help:      "Send ticks skipped because the streamer was paused",
		}),
		ControlReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "streamer",
			Name:      "control_received_total",
			Help:      "Feedback signals received by the streamer",
		}, []string{"signal"}),
		SendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Datagrams that failed to send",
		}, []string{"kind"}),
		StreamerPaused: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "streamer",
			Name:      "paused",
			Help:      "1 while the streamer is paused, 0 while sending",
		}),
		NextSequence: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "streamer",
			Name:      "next_sequence",
			Help:      "Next data sequence number to assign",
		}),

		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "packets_received_total",
			Help:      "Data packets accepted into the packet buffer",
		}),
		FramesPromoted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "frames_promoted_total",
			Help:      "Complete frames moved into the ready buffer",
		}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "frames_dropped_total",
			Help:      "Frames discarded by the reassembler",
		}, []string{"reason"}),
		FramesPlayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "frames_played_total",
			Help:      "Frames delivered to playback",
		}),
		Underruns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "underruns_total",
			Help:      "Consume cycles whose frame had not arrived",
		}),
		ControlSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "control_sent_total",
			Help:      "Feedback signals sent by the client",
		}, []string{"signal"}),
		ReadyFrames: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "ready_frames",
			Help:      "Frames in the ready buffer after the last cycle",
		}),
		PendingFrames: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "pending_frames",
			Help:      "Partially received frames in the packet buffer",
		}),
		CurrentFrame: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "current_frame",
			Help:      "Next frame index the consumer expects",
		}),
		TransitSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "packet_transit_seconds",
			Help:      "Delay between a data packet's timestamp and its arrival",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),

		MalformedDatagrams: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_datagrams_total",
			Help:      "Datagrams dropped because they failed to decode",
		}),
	}
}

// Registry returns the private registry created by New(nil), or nil when the
// instruments were registered elsewhere.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
