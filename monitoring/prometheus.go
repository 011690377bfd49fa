package monitoring

import (
	"net/http"
	"time"

	"github.com/ancourn/kaldr/logx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MessageDroppedReason labels the dropped-message counter
type MessageDroppedReason string

var (
	MsgMissingBlockHash MessageDroppedReason = "missing_block_hash"
	MsgMissingPayload   MessageDroppedReason = "missing_payload"
	MsgUnknownType      MessageDroppedReason = "unknown_type"
	MsgUnhandledType    MessageDroppedReason = "unhandled_type"
)

type nodePromMetrics struct {
	nodeUpUnixSeconds    prometheus.Gauge
	syncCurrentHeight    prometheus.Gauge
	syncTargetHeight     prometheus.Gauge
	syncSpeed            prometheus.Gauge
	validationQueueDepth prometheus.Gauge
	batchSyncedCount     prometheus.Counter
	batchSyncTime        prometheus.Histogram
	fetchRetryCount      prometheus.Counter
	catchupErrorCount    prometheus.Counter
	droppedMsgCount      *prometheus.CounterVec
	deepValidatedCount   *prometheus.CounterVec
	panicCount           prometheus.Counter
}

func newNodePromMetrics() *nodePromMetrics {
	return &nodePromMetrics{
		nodeUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kaldr_node_up_timestamp_unix_seconds",
				Help: "Unix timestamp of the node",
			},
		),
		syncCurrentHeight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kaldr_node_sync_current_height",
				Help: "The current validated height of the catch-up session",
			},
		),
		syncTargetHeight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kaldr_node_sync_target_height",
				Help: "The target height of the catch-up session",
			},
		),
		syncSpeed: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kaldr_node_sync_speed_blocks_per_second",
				Help: "Blocks validated and stored per second over the session",
			},
		),
		validationQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kaldr_node_validation_queue_depth",
				Help: "Headers waiting for deep validation",
			},
		),
		batchSyncedCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kaldr_node_batch_synced_count",
				Help: "The total number of header batches validated and stored",
			},
		),
		batchSyncTime: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name: "kaldr_node_batch_sync_time",
				Help: "Duration in second from batch fetch start until stored",
			},
		),
		fetchRetryCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kaldr_node_fetch_retry_count",
				Help: "The total number of per-height fetch retries",
			},
		),
		catchupErrorCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kaldr_node_catchup_error_count",
				Help: "The total number of batch-level catch-up failures",
			},
		),
		droppedMsgCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kaldr_node_dropped_message_count",
				Help: "The total number of consensus messages dropped by the router",
			},
			[]string{"reason"},
		),
		deepValidatedCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kaldr_node_deep_validated_count",
				Help: "The total number of stored headers re-checked by the validation queue",
			},
			[]string{"result"},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kaldr_node_panic_count",
				Help: "The total number of recovered panics",
			},
		),
	}
}

var metrics = newNodePromMetrics()

func SetNodeUp() {
	metrics.nodeUpUnixSeconds.Set(float64(time.Now().Unix()))
}

func SetSyncHeights(current, target uint64) {
	metrics.syncCurrentHeight.Set(float64(current))
	metrics.syncTargetHeight.Set(float64(target))
}

func SetSyncSpeed(blocksPerSecond float64) {
	metrics.syncSpeed.Set(blocksPerSecond)
}

func SetValidationQueueDepth(depth int) {
	metrics.validationQueueDepth.Set(float64(depth))
}

func IncreaseBatchSyncedCount() {
	metrics.batchSyncedCount.Inc()
}

func ObserveBatchSyncTime(seconds float64) {
	metrics.batchSyncTime.Observe(seconds)
}

func IncreaseFetchRetryCount() {
	metrics.fetchRetryCount.Inc()
}

func IncreaseCatchupErrorCount() {
	metrics.catchupErrorCount.Inc()
}

func IncreaseDroppedMessageCount(reason MessageDroppedReason) {
	metrics.droppedMsgCount.WithLabelValues(string(reason)).Inc()
}

func IncreaseDeepValidatedCount(valid bool) {
	result := "valid"
	if !valid {
		result = "invalid"
	}
	metrics.deepValidatedCount.WithLabelValues(result).Inc()
}

func IncreasePanicCount() {
	metrics.panicCount.Inc()
}

// ServeMetrics exposes the prometheus handler on addr. Blocks.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logx.Info("MONITORING", "Serving prometheus metrics on ", addr)
	return http.ListenAndServe(addr, mux)
}
