package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 syncd 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		QueueLength, ItemsTotal, DrainTotal, DrainDuration,
		BackoffSeconds, Online, Syncing,
		EstimationJobsTotal, EstimationPollTotal,
	)
}

// QueueLength 当前待同步队列长度
var QueueLength = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "scopekit_sync_queue_length",
		Help: "待同步队列项数量",
	},
)

// ItemsTotal 队列项处理结果计数
var ItemsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scopekit_sync_items_total",
		Help: "队列项处理结果计数",
	},
	[]string{"kind", "result"}, // synced | failed | orphaned | stalled | cleanup_failed
)

// DrainTotal drain 周期计数
var DrainTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scopekit_sync_drain_total",
		Help: "drain 周期计数（按结果）",
	},
	[]string{"outcome"}, // completed | skipped_offline | skipped_inflight | cancelled
)

// DrainDuration 单个 drain 周期耗时（秒）
var DrainDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "scopekit_sync_drain_duration_seconds",
		Help:    "drain 周期耗时（秒）",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	},
)

// BackoffSeconds 失败后施加的退避时长
var BackoffSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "scopekit_sync_backoff_seconds",
		Help:    "失败后退避时长（秒）",
		Buckets: []float64{1, 2, 4, 8, 16},
	},
)

// Online 设备级在线状态（1 在线，0 离线）
var Online = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "scopekit_sync_online",
		Help: "设备级在线状态",
	},
)

// Syncing 是否有 drain 正在执行
var Syncing = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "scopekit_sync_in_flight",
		Help: "是否有 drain 正在执行",
	},
)

// EstimationJobsTotal AIJob 状态迁移计数
var EstimationJobsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scopekit_estimation_jobs_total",
		Help: "AIJob 状态迁移计数",
	},
	[]string{"status"}, // queued | processing | completed | failed
)

// EstimationPollTotal 轮询结束原因计数
var EstimationPollTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scopekit_estimation_poll_total",
		Help: "估算轮询结束原因",
	},
	[]string{"outcome"}, // completed | failed | timeout | cancelled
)

// BoolGauge 将 bool 写入 gauge
func BoolGauge(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
