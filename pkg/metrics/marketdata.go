package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 快照出口：redis 快照缓存和 broker 推送
var (
	// SnapshotCacheSeconds 每次读写快照缓存的耗时。
	// result: stored / hit / miss / error，miss 单独计，不算故障
	SnapshotCacheSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "snapshot_cache_seconds",
		Help:      "Latency of snapshot cache reads and writes, by result.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms ~ 1s
	}, []string{"cmd", "result"})

	SnapshotCacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshot_cache_errors_total",
		Help:      "Snapshot cache commands that failed, breaker rejections excluded.",
	}, []string{"cmd"})

	// BrokerPublishTotal topic 是 book:<symbol> 或 trades:<symbol>
	BrokerPublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broker_publish_total",
		Help:      "Book snapshots and trades handed to the broker, by topic and status.",
	}, []string{"topic", "status"})
)
