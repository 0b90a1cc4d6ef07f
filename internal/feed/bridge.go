package feed

import (
	"context"

	"gopherbook.com/internal/marketdata"
)

// Bridge 订阅 broker，把消息原样转给本地 hub。单机是内存 broker，多机走 NATS
func Bridge(ctx context.Context, b marketdata.Broker, h *Hub, topics []string) error {
	ch, err := b.Subscribe(ctx, topics)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			h.Publish(m.Topic, m.Payload)
		}
	}
}

// Topics 每个品种的盘口和成交 topic
func Topics(symbols []string) []string {
	out := make([]string, 0, 2*len(symbols))
	for _, s := range symbols {
		out = append(out, marketdata.BookTopic(s), marketdata.TradeTopic(s))
	}
	return out
}
