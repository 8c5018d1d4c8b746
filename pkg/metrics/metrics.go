package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fund movement directions.
const (
	DirectionDeposit = "deposit"
	DirectionPayout  = "payout"
	DirectionRefund  = "refund"
)

var (
	// Escrow operation outcomes; result is "ok" or the error code.
	EscrowOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_operations_total",
			Help: "Total number of escrow operations by outcome",
		},
		[]string{"operation", "result"},
	)

	EscrowOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "escrow_operation_duration_seconds",
			Help:    "Escrow operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"operation"},
	)

	// Token units moved through the escrow holder.
	EscrowFundsMoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_funds_moved_total",
			Help: "Total token units moved through the escrow holder",
		},
		[]string{"direction"},
	)

	EscrowEventsObserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_events_observed_total",
			Help: "Total number of escrow events consumed by the observer",
		},
		[]string{"routing_key"},
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	DBSlowQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_queries_total",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"sql"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	OutboxDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_dispatched_total",
			Help: "Total number of outbox events handed to the broker",
		},
		[]string{"status"}, // status: sent, failed
	)
)

// RecordEscrowOperation 记录一次 escrow 操作
func RecordEscrowOperation(operation, result string, duration time.Duration) {
	EscrowOperations.WithLabelValues(operation, result).Inc()
	EscrowOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// AddFundsMoved adds amount token units to the direction counter. Zero is ignored.
func AddFundsMoved(direction string, amount uint64) {
	if amount == 0 {
		return
	}
	EscrowFundsMoved.WithLabelValues(direction).Add(float64(amount))
}

func IncrementEscrowEventObserved(routingKey string) {
	EscrowEventsObserved.WithLabelValues(routingKey).Inc()
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncrementSlowQuery counts a slow statement. The duration is already logged by the tracer.
func IncrementSlowQuery(sql string, _ time.Duration) {
	DBSlowQueries.WithLabelValues(sql).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func IncrementOutboxDispatched(status string) {
	OutboxDispatched.WithLabelValues(status).Inc()
}
