package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_console_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "research_console_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Agent stream metrics
	streamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_console_stream_events_total",
			Help: "Total number of frames received from the agent stream",
		},
		[]string{"event"},
	)

	streamErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "research_console_stream_errors_total",
			Help: "Total number of agent stream errors",
		},
	)

	// Timeline metrics
	timelineEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_console_timeline_entries_total",
			Help: "Total number of activity timeline entries produced",
		},
		[]string{"stage"},
	)

	archivesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "research_console_archives_total",
			Help: "Total number of timelines archived under an agent message",
		},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "research_console_active_sessions",
			Help: "Number of open sessions",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers the collectors with the default registry. Safe to
// call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			streamEventsTotal,
			streamErrorsTotal,
			timelineEntriesTotal,
			archivesTotal,
			activeSessions,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordStreamEvent(event string) {
	streamEventsTotal.WithLabelValues(event).Inc()
}

func RecordStreamError() {
	streamErrorsTotal.Inc()
}

func RecordTimelineEntry(stage string) {
	timelineEntriesTotal.WithLabelValues(stage).Inc()
}

func RecordArchive() {
	archivesTotal.Inc()
}

func SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}
