package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription service
type Metrics struct {
	// Session metrics
	ActiveSessions    prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsDestroyed prometheus.Counter
	SessionDuration   prometheus.Histogram

	// Audio ingest metrics
	AudioBytesReceived  prometheus.Counter
	AudioChunksRejected prometheus.Counter
	QueuedMegabytes     prometheus.Gauge

	// Transcription metrics
	TranscriptionResults prometheus.Counter
	FixedSegments        prometheus.Counter
	TentativeSegments    prometheus.Counter

	// Bot metrics
	LLMCalls    prometheus.Counter
	LLMFailures prometheus.Counter
	TTSCalls    prometheus.Counter
	TTSFailures prometheus.Counter
	BotOutputs  *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mms_active_sessions",
			Help: "Current number of active transcription sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mms_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsDestroyed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mms_sessions_destroyed_total",
			Help: "Total number of sessions destroyed",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mms_session_duration_seconds",
			Help:    "Duration of transcription sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),

		// Audio ingest metrics
		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mms_audio_bytes_received_total",
			Help: "Total compressed audio bytes received from clients",
		}),
		AudioChunksRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mms_audio_chunks_rejected_total",
			Help: "Total audio chunks rejected by the decode probe",
		}),
		QueuedMegabytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mms_audio_queued_megabytes",
			Help: "Approximate audio backlog not yet consumed by decoders",
		}),

		// Transcription metrics
		TranscriptionResults: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mms_transcription_results_total",
			Help: "Total transcription result tuples relayed to clients",
		}),
		FixedSegments: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mms_fixed_segments_total",
			Help: "Total text segments promoted to fixed",
		}),
		TentativeSegments: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mms_tentative_segments_total",
			Help: "Total tentative text segments relayed",
		}),

		// Bot metrics
		LLMCalls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mms_llm_calls_total",
			Help: "Total completion calls made by bot actions",
		}),
		LLMFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mms_llm_failures_total",
			Help: "Total failed completion calls",
		}),
		TTSCalls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mms_tts_calls_total",
			Help: "Total speech synthesis calls",
		}),
		TTSFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mms_tts_failures_total",
			Help: "Total failed speech synthesis calls",
		}),
		BotOutputs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mms_bot_outputs_total",
			Help: "Total bot outputs relayed to clients",
		}, []string{"command"}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mms_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mms_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mms_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// SetActiveSessions sets the current number of active sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionDestroyed increments the sessions destroyed counter and records duration
func (m *Metrics) RecordSessionDestroyed(durationSeconds float64) {
	m.SessionsDestroyed.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordAudioReceived counts ingested audio bytes
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
}

// RecordAudioRejected increments the rejected chunk counter
func (m *Metrics) RecordAudioRejected() {
	m.AudioChunksRejected.Inc()
}

// SetQueuedMegabytes sets the audio backlog gauge
func (m *Metrics) SetQueuedMegabytes(mb float64) {
	m.QueuedMegabytes.Set(mb)
}

// RecordTranscriptionResult counts one relayed result tuple
func (m *Metrics) RecordTranscriptionResult(fixed, tentative int) {
	m.TranscriptionResults.Inc()
	m.FixedSegments.Add(float64(fixed))
	m.TentativeSegments.Add(float64(tentative))
}

// RecordLLMCall records a completion call and its outcome
func (m *Metrics) RecordLLMCall(success bool) {
	m.LLMCalls.Inc()
	if !success {
		m.LLMFailures.Inc()
	}
}

// RecordTTSCall records a synthesis call and its outcome
func (m *Metrics) RecordTTSCall(success bool) {
	m.TTSCalls.Inc()
	if !success {
		m.TTSFailures.Inc()
	}
}

// RecordBotOutput counts one relayed bot output by command kind
func (m *Metrics) RecordBotOutput(command string) {
	m.BotOutputs.WithLabelValues(command).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
