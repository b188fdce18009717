// Package metrics provides Prometheus instrumentation for the fraud detection platform.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraud_detection",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fraud_detection",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ChecksTotal counts fraud checks by risk level and recommendation.
	ChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraud_detection",
			Name:      "checks_total",
			Help:      "Total fraud checks by risk level and recommendation.",
		},
		[]string{"risk_level", "recommendation"},
	)

	// FraudDetectedTotal counts transactions flagged as fraudulent.
	FraudDetectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fraud_detection",
		Name:      "fraud_detected_total",
		Help:      "Total transactions flagged as fraudulent.",
	})

	// CheckDuration observes end-to-end scoring latency.
	CheckDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fraud_detection",
		Name:      "check_duration_seconds",
		Help:      "Fraud check duration in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	// ModelReloadsTotal counts model reload attempts by result.
	ModelReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraud_detection",
			Name:      "model_reloads_total",
			Help:      "Total model reload attempts by result.",
		},
		[]string{"result"},
	)

	// EventsPublishedTotal counts decision events published to the stream.
	EventsPublishedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fraud_detection",
		Name:      "events_published_total",
		Help:      "Total decision events published to the Redis stream.",
	})

	// EventsConsumedTotal counts stream events consumed by workers, by result.
	EventsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraud_detection",
			Name:      "events_consumed_total",
			Help:      "Total stream events consumed by workers, by result.",
		},
		[]string{"result"},
	)

	// AlertsCreatedTotal counts alerts created by severity.
	AlertsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraud_detection",
			Name:      "alerts_created_total",
			Help:      "Total fraud alerts created by severity.",
		},
		[]string{"severity"},
	)

	// KafkaMessagesTotal counts Kafka messages processed by result.
	KafkaMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraud_detection",
			Name:      "kafka_messages_total",
			Help:      "Total Kafka messages processed by result.",
		},
		[]string{"result"},
	)

	// DBTotalConnections tracks total connections in the pool.
	DBTotalConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraud_detection", Name: "db_total_connections",
		Help: "Total connections in the database pool.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraud_detection", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBAcquiredConnections tracks in-use database connections.
	DBAcquiredConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraud_detection", Name: "db_acquired_connections",
		Help: "Number of currently acquired database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraud_detection", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ChecksTotal,
		FraudDetectedTotal,
		CheckDuration,
		ModelReloadsTotal,
		EventsPublishedTotal,
		EventsConsumedTotal,
		AlertsCreatedTotal,
		KafkaMessagesTotal,
		DBTotalConnections,
		DBIdleConnections,
		DBAcquiredConnections,
		GoroutineCount,
	)
}

// ObserveCheck records a completed fraud check.
func ObserveCheck(riskLevel, recommendation string, fraudulent bool, elapsed time.Duration) {
	ChecksTotal.WithLabelValues(riskLevel, recommendation).Inc()
	if fraudulent {
		FraudDetectedTotal.Inc()
	}
	CheckDuration.Observe(elapsed.Seconds())
}

// StartPoolStatsCollector periodically samples pgxpool stats and the runtime
// goroutine count into Prometheus gauges. Call in a goroutine; exits when ctx
// is done.
func StartPoolStatsCollector(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := pool.Stat()
			DBTotalConnections.Set(float64(stats.TotalConns()))
			DBIdleConnections.Set(float64(stats.IdleConns()))
			DBAcquiredConnections.Set(float64(stats.AcquiredConns()))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
