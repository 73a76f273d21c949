package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the Prometheus metrics of the transceiver. A nil *Metrics
// records nothing.
type Metrics struct {
	// Scheduler metrics
	Ticks              prometheus.Counter
	State              prometheus.Gauge
	PlaybackQueueBytes prometheus.Gauge
	CaptureQueueBytes  prometheus.Gauge

	// Receive path
	FramesDecoded       prometheus.Counter
	DecodeFailures      prometheus.Counter
	CorruptedFrames     prometheus.Counter
	PayloadsReceived    prometheus.Counter
	Overruns            prometheus.Counter
	DroppedCaptureBytes prometheus.Counter

	// Transmit path
	PayloadsSent   prometheus.Counter
	WaveformBytes  prometheus.Counter
	EncodeDuration prometheus.Histogram

	// Bridge
	BridgeConnects *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "sonic_ticks_total",
			Help: "Total number of scheduler ticks",
		}),
		State: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sonic_state",
			Help: "Scheduler state: 0 idle, 1 receiving, 2 transmitting",
		}),
		PlaybackQueueBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sonic_playback_queue_bytes",
			Help: "Bytes queued on the playback device",
		}),
		CaptureQueueBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sonic_capture_queue_bytes",
			Help: "Bytes queued on the capture device",
		}),

		FramesDecoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "sonic_frames_decoded_total",
			Help: "Total number of analysis frames handed to the engine",
		}),
		DecodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sonic_decode_failures_total",
			Help: "Total number of frames the engine rejected",
		}),
		CorruptedFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "sonic_corrupted_transmissions_total",
			Help: "Total number of transmissions dropped on a bad length or checksum",
		}),
		PayloadsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "sonic_payloads_received_total",
			Help: "Total number of payloads received",
		}),
		Overruns: factory.NewCounter(prometheus.CounterOpts{
			Name: "sonic_capture_overruns_total",
			Help: "Total number of capture queue purges caused by backlog",
		}),
		DroppedCaptureBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "sonic_capture_dropped_bytes_total",
			Help: "Captured bytes purged by the backlog guard",
		}),

		PayloadsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "sonic_payloads_sent_total",
			Help: "Total number of payloads encoded for playback",
		}),
		WaveformBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "sonic_waveform_bytes_total",
			Help: "Total number of waveform bytes queued for playback",
		}),
		EncodeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sonic_encode_duration_seconds",
			Help:    "Time spent encoding one payload",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		}),

		BridgeConnects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sonic_bridge_connects_total",
			Help: "Bridge connection attempts by result",
		}, []string{"result"}),
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordTick updates the per-tick gauges.
func (m *Metrics) RecordTick(state int, playbackQueued, captureQueued int) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	m.State.Set(float64(state))
	m.PlaybackQueueBytes.Set(float64(playbackQueued))
	m.CaptureQueueBytes.Set(float64(captureQueued))
}

// RecordDecode counts one analysis frame and whether the engine accepted it.
func (m *Metrics) RecordDecode(ok bool) {
	if m == nil {
		return
	}
	m.FramesDecoded.Inc()
	if !ok {
		m.DecodeFailures.Inc()
	}
}

func (m *Metrics) RecordCorrupted(n int) {
	if m == nil {
		return
	}
	m.CorruptedFrames.Add(float64(n))
}

func (m *Metrics) RecordReceived() {
	if m == nil {
		return
	}
	m.PayloadsReceived.Inc()
}

// RecordOverrun counts a backlog purge of dropped bytes.
func (m *Metrics) RecordOverrun(dropped int) {
	if m == nil {
		return
	}
	m.Overruns.Inc()
	m.DroppedCaptureBytes.Add(float64(dropped))
}

// RecordSent counts an encoded payload and its waveform size.
func (m *Metrics) RecordSent(waveformBytes int, took time.Duration) {
	if m == nil {
		return
	}
	m.PayloadsSent.Inc()
	m.WaveformBytes.Add(float64(waveformBytes))
	m.EncodeDuration.Observe(took.Seconds())
}

// RecordBridgeConnect counts a bridge connection attempt.
func (m *Metrics) RecordBridgeConnect(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.BridgeConnects.WithLabelValues(result).Inc()
}
