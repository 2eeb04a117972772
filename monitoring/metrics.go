package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 请求计数器
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockbt_requests_total",
			Help: "总请求数",
		},
		[]string{"method", "endpoint", "status"},
	)

	// 请求延迟
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stockbt_request_duration_seconds",
			Help:    "请求延迟",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// 回测运行计数器
	BacktestRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockbt_backtest_runs_total",
			Help: "回测运行次数",
		},
		[]string{"status"},
	)

	// 回测耗时
	BacktestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stockbt_backtest_duration_seconds",
			Help:    "单次回测耗时",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	// 成交计数器
	TradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockbt_trades_total",
			Help: "模拟成交笔数",
		},
		[]string{"operation"},
	)

	// 拒单计数器
	OrderRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockbt_order_rejections_total",
			Help: "被拒绝的交易意图数",
		},
		[]string{"reason"},
	)

	// 数据获取计数器
	DataFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockbt_data_fetch_total",
			Help: "数据获取次数",
		},
		[]string{"source", "status"},
	)

	// 数据获取延迟
	DataFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stockbt_data_fetch_duration_seconds",
			Help:    "数据获取延迟",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// 参数扫描任务计数器
	SweepTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockbt_sweep_tasks_total",
			Help: "参数扫描子任务数",
		},
		[]string{"status"},
	)

	// 活跃连接数
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stockbt_active_connections",
			Help: "活跃WebSocket连接数",
		},
	)

	// 缓存命中率
	CacheHitRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stockbt_cache_hit_ratio",
			Help: "缓存命中率",
		},
	)
)

// RecordRequest 记录请求
func RecordRequest(method, endpoint, status string, duration float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordBacktestRun 记录一次回测运行
func RecordBacktestRun(status string, duration float64) {
	BacktestRunsTotal.WithLabelValues(status).Inc()
	BacktestDuration.Observe(duration)
}

// RecordTrade 记录一笔模拟成交
func RecordTrade(operation string) {
	TradesTotal.WithLabelValues(operation).Inc()
}

// RecordRejection 记录一次拒单
func RecordRejection(reason string) {
	OrderRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordDataFetch 记录数据获取
func RecordDataFetch(source, status string, duration float64) {
	DataFetchTotal.WithLabelValues(source, status).Inc()
	DataFetchDuration.WithLabelValues(source).Observe(duration)
}

// RecordSweepTask 记录参数扫描子任务
func RecordSweepTask(status string) {
	SweepTasksTotal.WithLabelValues(status).Inc()
}

// RecordActiveConnections 记录活跃连接数
func RecordActiveConnections(count int) {
	ActiveConnections.Set(float64(count))
}

// RecordCacheHitRatio 记录缓存命中率
func RecordCacheHitRatio(ratio float64) {
	CacheHitRatio.Set(ratio)
}
