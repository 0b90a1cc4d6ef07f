package marketdata

import (
	"context"
	"sync"
)

type MemBroker struct {
	mu   sync.RWMutex
	subs map[string][]chan Message
	buf  int
}

func NewMemBroker(buf int) *MemBroker {
	if buf <= 0 {
		buf = 4096
	}
	return &MemBroker{subs: make(map[string][]chan Message), buf: buf}
}

func (b *MemBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	// fanout：at-most-once，慢订阅者直接丢
	msg := Message{Topic: topic, Payload: payload}
	for _, ch := range b.subs[topic] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (b *MemBroker) Subscribe(ctx context.Context, topics []string) (<-chan Message, error) {
	ch := make(chan Message, b.buf)
	b.mu.Lock()
	for _, t := range topics {
		b.subs[t] = append(b.subs[t], ch)
	}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(ch, topics)
		close(ch)
	}()
	return ch, nil
}

// unsubscribe 持写锁摘掉通道，之后 Publish 不会再往里写
func (b *MemBroker) unsubscribe(ch chan Message, topics []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		list := b.subs[t]
		for i := range list {
			if list[i] == ch {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(b.subs, t)
		} else {
			b.subs[t] = list
		}
	}
}

func (b *MemBroker) Close() error { return nil }
