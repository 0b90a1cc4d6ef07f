package engine

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"gopherbook.com/internal/matching"
	"gopherbook.com/pkg/logger"
	"gopherbook.com/pkg/metrics"
)

type ActorConfig struct {
	MailboxSize int // mailbox 容量
	BatchMax    int // 一次最多处理多少条
}

// InstrumentActor 一个品种一个 actor：唯一的协程读 mailbox，
// 该品种订单簿的所有调用都发生在这个协程上，mailbox 顺序即生效顺序
type InstrumentActor struct {
	symbol string
	book   Book
	in     chan Command
	cfg    ActorConfig

	bus       EventSink
	snapshots SnapshotSink

	snap atomic.Pointer[matching.Snapshot] // 最近一个 batch 结束时的快照

	// 当前指令产生的成交，由 book 的 TradeSink 回写
	trades []matching.Trade

	mailboxFull uint64
	eventsDrop  uint64
	done        chan struct{}
}

func NewInstrumentActor(symbol string, book Book, cfg ActorConfig, bus EventSink, snapshots SnapshotSink) *InstrumentActor {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 4096
	}
	if cfg.BatchMax <= 0 {
		cfg.BatchMax = 256
	}
	a := &InstrumentActor{
		symbol:    symbol,
		book:      book,
		in:        make(chan Command, cfg.MailboxSize),
		cfg:       cfg,
		bus:       bus,
		snapshots: snapshots,
		done:      make(chan struct{}),
	}
	book.SetTradeSink(func(t matching.Trade) { a.trades = append(a.trades, t) })
	s := book.Snapshot(0)
	a.snap.Store(&s)
	return a
}

func (a *InstrumentActor) Symbol() string { return a.symbol }

// TryEnqueue 非阻塞入队，mailbox 满了返回 ErrEngineBusy
func (a *InstrumentActor) TryEnqueue(cmd Command) error {
	select {
	case <-a.done:
		return ErrStopped
	default:
	}
	select {
	case a.in <- cmd:
		return nil
	default:
		atomic.AddUint64(&a.mailboxFull, 1)
		metrics.MailboxFullTotal.WithLabelValues(a.symbol).Inc()
		return ErrEngineBusy
	}
}

// Enqueue 阻塞入队直到成功、ctx 结束或 actor 停止
func (a *InstrumentActor) Enqueue(ctx context.Context, cmd Command) error {
	select {
	case a.in <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return ErrStopped
	}
}

// Submit 入队并等待处理结果
func (a *InstrumentActor) Submit(ctx context.Context, reqID uint64, o matching.Order) (Result, error) {
	reply := make(chan Result, 1)
	if err := a.Enqueue(ctx, Command{ReqID: reqID, Order: o, reply: reply}); err != nil {
		return Result{}, err
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-a.done:
		return Result{}, ErrStopped
	}
}

// Snapshot 最近一个 batch 结束时的快照，按 depth 再截断。
// 读者永远不碰活跃的订单簿
func (a *InstrumentActor) Snapshot(depth int) matching.Snapshot {
	s := *a.snap.Load()
	if depth > 0 {
		if len(s.Bids) > depth {
			s.Bids = s.Bids[:depth]
		}
		if len(s.Asks) > depth {
			s.Asks = s.Asks[:depth]
		}
		if s.Depth == 0 || depth < s.Depth {
			s.Depth = depth
		}
	}
	return s
}

func (a *InstrumentActor) MailboxFull() uint64   { return atomic.LoadUint64(&a.mailboxFull) }
func (a *InstrumentActor) EventsDropped() uint64 { return atomic.LoadUint64(&a.eventsDrop) }

// Done actor 退出后关闭
func (a *InstrumentActor) Done() <-chan struct{} { return a.done }

func (a *InstrumentActor) Run(ctx context.Context) {
	defer close(a.done)

	// 复用 batch slice，避免每轮分配
	batch := make([]Command, 0, a.cfg.BatchMax)
	results := make([]Result, 0, a.cfg.BatchMax)
	for {
		// 先阻塞拿 1 条，再尽量多拿几条（不阻塞）
		var first Command
		select {
		case <-ctx.Done():
			a.drainOnStop()
			return
		case first = <-a.in:
		}
		batch = batch[:0]
		batch = append(batch, first)
	fill:
		for len(batch) < a.cfg.BatchMax {
			select {
			case cmd := <-a.in:
				batch = append(batch, cmd)
			default:
				break fill
			}
		}

		results = results[:0]
		for i := range batch {
			results = append(results, a.apply(batch[i]))
		}
		metrics.BatchSize.WithLabelValues(a.symbol).Observe(float64(len(batch)))
		a.publishSnapshot()

		// 快照发布之后再回结果：调用方拿到 OK 时快照里已经能看到这条指令
		for i := range batch {
			if batch[i].reply != nil {
				batch[i].reply <- results[i]
			}
			batch[i] = Command{}
		}
	}
}

func (a *InstrumentActor) apply(cmd Command) Result {
	a.trades = a.trades[:0]
	o := cmd.Order

	// 只有本次调用打上了新序号才带出去，撤单和被拒的动作为 0
	before := a.book.LastSeq()
	err := a.book.HandleIncomingOrder(o)
	var seq uint64
	if after := a.book.LastSeq(); after != before {
		seq = after
	}

	action := o.Action.String()
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(a.symbol, action, "rejected").Inc()
		a.publish(Event{
			Type: EvRejected, Symbol: a.symbol, Seq: seq, ReqID: cmd.ReqID,
			Action: o.Action, OrderID: o.ID, Reason: err.Error(),
		})
		logger.Debug(context.Background(), "order rejected",
			zap.String("symbol", a.symbol), zap.Stringer("order", o), zap.Error(err))
	} else {
		metrics.OrdersTotal.WithLabelValues(a.symbol, action, "ok").Inc()
		a.publish(Event{
			Type: EvAccepted, Symbol: a.symbol, Seq: seq, ReqID: cmd.ReqID,
			Action: o.Action, OrderID: o.ID,
		})
		for _, t := range a.trades {
			a.publish(Event{
				Type: EvTrade, Symbol: a.symbol, Seq: seq, ReqID: cmd.ReqID, Action: o.Action,
				MakerOrderID: t.MakerID, TakerOrderID: t.TakerID, Price: t.Price, Qty: t.Qty,
			})
		}
		if n := len(a.trades); n > 0 {
			metrics.TradesTotal.WithLabelValues(a.symbol).Add(float64(n))
		}
	}
	return Result{Seq: seq, Err: err}
}

func (a *InstrumentActor) publish(ev Event) {
	if a.bus == nil {
		return
	}
	if !a.bus.TryPublish(ev) {
		atomic.AddUint64(&a.eventsDrop, 1)
	}
}

func (a *InstrumentActor) publishSnapshot() {
	s := a.book.Snapshot(0)
	a.snap.Store(&s)
	metrics.BookLevels.WithLabelValues(a.symbol, "buy").Set(float64(len(s.Bids)))
	metrics.BookLevels.WithLabelValues(a.symbol, "sell").Set(float64(len(s.Asks)))
	if a.snapshots != nil {
		a.snapshots.OnSnapshot(a.symbol, s)
	}
}

// drainOnStop 停止时把还在 mailbox 里等结果的调用方放走
func (a *InstrumentActor) drainOnStop() {
	for {
		select {
		case cmd := <-a.in:
			if cmd.reply != nil {
				cmd.reply <- Result{Err: ErrStopped}
			}
		default:
			return
		}
	}
}

// IsBusy 便于调用方区分可重试的拒绝
func IsBusy(err error) bool { return errors.Is(err, ErrEngineBusy) }
