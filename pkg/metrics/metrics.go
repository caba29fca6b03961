package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry           *prometheus.Registry
	registryOnce       sync.Once
	defaultMetricsPath = "/metrics"
	metricsEnabled     = true

	// Recorder metrics
	RecordingsTotal  *prometheus.CounterVec
	RecordingActive  prometheus.Gauge
	RecordingSeconds prometheus.Histogram

	// Gate metrics
	GateDecisions *prometheus.CounterVec

	// STT metrics
	STTRequestsTotal *prometheus.CounterVec
	STTLatency       *prometheus.HistogramVec

	// Pipeline metrics
	PipelineRuns     *prometheus.CounterVec
	PipelineInFlight prometheus.Gauge
	AnalysisScore    prometheus.Histogram

	// History metrics
	HistoryEntries prometheus.Gauge

	// AMQP metrics
	AMQPPublishedMessages *prometheus.CounterVec
	AMQPConnectionStatus  prometheus.Gauge

	// WebSocket metrics
	WebSocketClients prometheus.Gauge
)

// Init initializes all metrics and registers them with Prometheus
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		RecordingsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speechcoach_recordings_total",
				Help: "Total number of finished recording sessions by outcome",
			},
			[]string{"outcome"},
		)

		RecordingActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "speechcoach_recording_active",
				Help: "Whether a recording session is currently capturing audio",
			},
		)

		RecordingSeconds = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "speechcoach_recording_duration_seconds",
				Help:    "Duration of captured recordings",
				Buckets: []float64{5, 10, 20, 30, 40, 50, 60},
			},
		)

		GateDecisions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speechcoach_gate_decisions_total",
				Help: "Recording gate decisions",
			},
			[]string{"decision"},
		)

		STTRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speechcoach_stt_requests_total",
				Help: "Total number of transcription requests",
			},
			[]string{"provider", "status"},
		)

		STTLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "speechcoach_stt_latency_seconds",
				Help:    "Transcription request latency",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 9),
			},
			[]string{"provider"},
		)

		PipelineRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speechcoach_pipeline_runs_total",
				Help: "Processing pipeline runs by status",
			},
			[]string{"status"},
		)

		PipelineInFlight = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "speechcoach_pipeline_in_flight",
				Help: "Recordings currently being processed",
			},
		)

		AnalysisScore = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "speechcoach_analysis_score",
				Help:    "Distribution of analysis scores",
				Buckets: prometheus.LinearBuckets(0, 1, 11),
			},
		)

		HistoryEntries = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "speechcoach_history_entries",
				Help: "Number of entries in the history store",
			},
		)

		AMQPPublishedMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speechcoach_amqp_published_messages_total",
				Help: "Total number of messages published to AMQP",
			},
			[]string{"queue", "status"},
		)

		AMQPConnectionStatus = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "speechcoach_amqp_connection_status",
				Help: "AMQP connection status (1 for connected, 0 for disconnected)",
			},
		)

		WebSocketClients = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "speechcoach_websocket_clients",
				Help: "Connected WebSocket event clients",
			},
		)

		registry.MustRegister(
			RecordingsTotal,
			RecordingActive,
			RecordingSeconds,
			GateDecisions,
			STTRequestsTotal,
			STTLatency,
			PipelineRuns,
			PipelineInFlight,
			AnalysisScore,
			HistoryEntries,
			AMQPPublishedMessages,
			AMQPConnectionStatus,
			WebSocketClients,
		)

		logger.Debug("Prometheus metrics initialized")
	})
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	return registry
}

// EnableMetrics enables or disables metrics collection
func EnableMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IsMetricsEnabled returns whether metrics are enabled and initialized
func IsMetricsEnabled() bool {
	return metricsEnabled && registry != nil
}

// RegisterHandler registers the metrics HTTP handler
func RegisterHandler(mux *http.ServeMux) {
	if !IsMetricsEnabled() {
		return
	}
	handler := promhttp.HandlerFor(
		registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			Registry:          registry,
		},
	)
	mux.Handle(defaultMetricsPath, handler)
}

// StartMetrics initializes the metrics service
func StartMetrics(logger *logrus.Logger, enabled bool) {
	if !enabled {
		EnableMetrics(false)
		logger.Info("Metrics collection is disabled")
		return
	}

	Init(logger)
	EnableMetrics(true)
	logger.WithField("metrics_path", defaultMetricsPath).Debug("Metrics endpoint initialized")
}

// RecordRecording records a finished recording session
func RecordRecording(outcome string, durationSeconds int) {
	if IsMetricsEnabled() {
		RecordingsTotal.WithLabelValues(outcome).Inc()
		if durationSeconds > 0 {
			RecordingSeconds.Observe(float64(durationSeconds))
		}
	}
}

// SetRecordingActive marks whether the microphone is capturing
func SetRecordingActive(active bool) {
	if IsMetricsEnabled() {
		if active {
			RecordingActive.Set(1)
		} else {
			RecordingActive.Set(0)
		}
	}
}

// RecordGateDecision records a gate decision ("proceed" or "too_short")
func RecordGateDecision(decision string) {
	if IsMetricsEnabled() {
		GateDecisions.WithLabelValues(decision).Inc()
	}
}

// RecordSTTRequest records metrics for an STT request
func RecordSTTRequest(provider, status string) {
	if IsMetricsEnabled() {
		STTRequestsTotal.WithLabelValues(provider, status).Inc()
	}
}

// ObserveSTTLatency records STT latency with a timer function
func ObserveSTTLatency(provider string) func() {
	if !IsMetricsEnabled() {
		return func() {}
	}

	start := time.Now()
	return func() {
		STTLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}
}

// RecordPipelineRun records one processing pipeline run
func RecordPipelineRun(status string) {
	if IsMetricsEnabled() {
		PipelineRuns.WithLabelValues(status).Inc()
	}
}

// AddPipelineInFlight adjusts the in-flight gauge by delta
func AddPipelineInFlight(delta float64) {
	if IsMetricsEnabled() {
		PipelineInFlight.Add(delta)
	}
}

// ObserveScore records an analysis score
func ObserveScore(score float64) {
	if IsMetricsEnabled() {
		AnalysisScore.Observe(score)
	}
}

// SetHistoryEntries sets the current history size
func SetHistoryEntries(n int) {
	if IsMetricsEnabled() {
		HistoryEntries.Set(float64(n))
	}
}

// RecordAMQPPublish records metrics for an AMQP publish
func RecordAMQPPublish(queue, status string) {
	if IsMetricsEnabled() {
		AMQPPublishedMessages.WithLabelValues(queue, status).Inc()
	}
}

// SetAMQPConnectionStatus sets the AMQP connection status
func SetAMQPConnectionStatus(connected bool) {
	if IsMetricsEnabled() {
		if connected {
			AMQPConnectionStatus.Set(1)
		} else {
			AMQPConnectionStatus.Set(0)
		}
	}
}

// SetWebSocketClients sets the number of connected event clients
func SetWebSocketClients(n int) {
	if IsMetricsEnabled() {
		WebSocketClients.Set(float64(n))
	}
}
