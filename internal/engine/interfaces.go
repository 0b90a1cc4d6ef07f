package engine

import "gopherbook.com/internal/matching"

// Book actor 对订单簿的全部依赖，*matching.OrderBook 实现它
type Book interface {
	HandleIncomingOrder(o matching.Order) error
	Snapshot(depth int) matching.Snapshot
	SetTradeSink(sink matching.TradeSink)
	LastSeq() uint64
}

var _ Book = (*matching.OrderBook)(nil)

// EventSink 下游可能慢，只提供非阻塞的 TryPublish
type EventSink interface {
	TryPublish(ev Event) bool
}

// SnapshotSink 每个 batch 结束后接收最新快照。
// 在 actor 协程上调用，实现不能阻塞
type SnapshotSink interface {
	OnSnapshot(symbol string, snap matching.Snapshot)
}
