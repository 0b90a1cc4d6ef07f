package marketdata

import "context"

// Message 一条行情消息。Topic 为 book:<symbol> 或 trades:<symbol>，
// Payload 是 EncodeBook / EncodeTrade 的 JSON
type Message struct {
	Topic   string
	Payload []byte
}

// Broker 把快照和成交扇出给 websocket 推送等下游。
// 没配 nats_url 时用 MemBroker，否则走 NatsBroker（subject 里 ':' 换成 '.'）。
// Publish 不保证送达：下游跟不上时由实现决定丢弃
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe 只收 topics 里列出的主题；ctx 结束时取消订阅并关闭通道
	Subscribe(ctx context.Context, topics []string) (<-chan Message, error)
	Close() error
}
