package marketdata

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"gopherbook.com/internal/engine"
	"gopherbook.com/internal/matching"
	"gopherbook.com/pkg/logger"
	"gopherbook.com/pkg/metrics"
)

// Publisher 把 actor 发布的快照推到 broker 和缓存。
// OnSnapshot 跑在 actor 协程上，只记录每个品种的最新值；真正的 IO 在 Run 里做
type Publisher struct {
	broker Broker
	cache  Cache // 可为 nil

	mu     sync.Mutex
	latest map[string]matching.Snapshot
	notify chan struct{} // 缓冲 1：合并唤醒

	published atomic.Uint64
	failed    atomic.Uint64
}

var _ engine.SnapshotSink = (*Publisher)(nil)

func NewPublisher(broker Broker, cache Cache) *Publisher {
	return &Publisher{
		broker: broker,
		cache:  cache,
		latest: make(map[string]matching.Snapshot, 16),
		notify: make(chan struct{}, 1),
	}
}

// OnSnapshot 不阻塞；同一品种未推送的旧快照直接被覆盖
func (p *Publisher) OnSnapshot(symbol string, s matching.Snapshot) {
	p.mu.Lock()
	p.latest[symbol] = s
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Run 推送循环，ctx 结束前把剩下的快照推完
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.flush(context.WithoutCancel(ctx))
			return nil
		case <-p.notify:
			p.flush(ctx)
		}
	}
}

func (p *Publisher) take() map[string]matching.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.latest) == 0 {
		return nil
	}
	out := p.latest
	p.latest = make(map[string]matching.Snapshot, len(out))
	return out
}

func (p *Publisher) flush(ctx context.Context) {
	batch := p.take()
	symbols := make([]string, 0, len(batch))
	for s := range batch {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		payload, err := EncodeBook(sym, batch[sym])
		if err != nil {
			p.failed.Add(1)
			logger.Error(ctx, "encode book snapshot", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		topic := BookTopic(sym)
		if err := p.broker.Publish(ctx, topic, payload); err != nil {
			p.failed.Add(1)
			metrics.BrokerPublishTotal.WithLabelValues(topic, "error").Inc()
			logger.Warn(ctx, "broker publish failed", zap.String("topic", topic), zap.Error(err))
		} else {
			p.published.Add(1)
			metrics.BrokerPublishTotal.WithLabelValues(topic, "ok").Inc()
		}
		if p.cache != nil {
			if err := p.cache.SetBook(ctx, sym, payload); err != nil {
				p.failed.Add(1)
				logger.Warn(ctx, "cache book snapshot failed", zap.String("symbol", sym), zap.Error(err))
			}
		}
	}
}

// OnEvent 成交事件推到 trades:<symbol>，其它事件忽略。给 ChanBus.Drain 用
func (p *Publisher) OnEvent(ctx context.Context, ev engine.Event) {
	payload, ok, err := EncodeTrade(ev)
	if !ok {
		return
	}
	if err != nil {
		logger.Error(ctx, "encode trade", zap.String("symbol", ev.Symbol), zap.Error(err))
		return
	}
	topic := TradeTopic(ev.Symbol)
	status := "ok"
	if err := p.broker.Publish(ctx, topic, payload); err != nil {
		status = "error"
		logger.Warn(ctx, "broker publish failed", zap.String("topic", topic), zap.Error(err))
	}
	metrics.BrokerPublishTotal.WithLabelValues(topic, status).Inc()
}

func (p *Publisher) Published() uint64 { return p.published.Load() }
func (p *Publisher) Failed() uint64    { return p.failed.Load() }
