package engine

import (
	"context"
	"sync/atomic"
)

// ChanBus 所有品种共用的事件通道，满了直接丢弃并计数
type ChanBus struct {
	ch      chan Event
	dropped uint64
}

var _ EventSink = (*ChanBus)(nil)

func NewChanBus(size int) *ChanBus {
	if size <= 0 {
		size = 1 << 16
	}
	return &ChanBus{ch: make(chan Event, size)}
}

func (b *ChanBus) TryPublish(ev Event) bool {
	select {
	case b.ch <- ev:
		return true
	default:
		atomic.AddUint64(&b.dropped, 1)
		return false
	}
}

func (b *ChanBus) C() <-chan Event { return b.ch }
func (b *ChanBus) Dropped() uint64 { return atomic.LoadUint64(&b.dropped) }

func (b *ChanBus) Publish(ctx context.Context, ev Event) error {
	select {
	case b.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain 在当前协程消费事件直到 ctx 结束
func (b *ChanBus) Drain(ctx context.Context, fn func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.ch:
			fn(ev)
		}
	}
}
