package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"gopherbook.com/internal/matching"
	"gopherbook.com/pkg/logger"
	"gopherbook.com/pkg/safe"
)

// BookFactory 首次访问未注册品种时按需建簿；为 nil 时未注册品种直接报 ErrUnknownSymbol
type BookFactory func(symbol string) (Book, error)

type EngineConfig struct {
	EventBusSize int          // 事件通道容量
	ActorCfg     ActorConfig  // 每个 actor 的配置
	BookFactory  BookFactory  // 可选：懒创建
	Snapshots    SnapshotSink // 可选：快照下游（行情发布）
	Bus          *ChanBus     // 可选：外部传入事件通道，nil 时按 EventBusSize 新建
}

// Engine 品种 -> actor 路由
type Engine struct {
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
	actors map[string]*InstrumentActor
	bus    *ChanBus
	cfg    EngineConfig
	wg     sync.WaitGroup
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Bus == nil {
		cfg.Bus = NewChanBus(cfg.EventBusSize)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		ctx:    ctx,
		cancel: cancel,
		actors: make(map[string]*InstrumentActor, 16),
		bus:    cfg.Bus,
		cfg:    cfg,
	}
}

// Events 全部品种的事件流
func (e *Engine) Events() <-chan Event { return e.bus.C() }

func (e *Engine) Bus() *ChanBus { return e.bus }

// DroppedEvents 因通道满被丢弃的事件数
func (e *Engine) DroppedEvents() uint64 { return e.bus.Dropped() }

// Register 启动时绑定 品种 -> 订单簿，并启动它的 actor
func (e *Engine) Register(symbol string, book Book) (*InstrumentActor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx.Err() != nil {
		return nil, ErrStopped
	}
	if _, ok := e.actors[symbol]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSymbol, symbol)
	}
	return e.startLocked(symbol, book), nil
}

func (e *Engine) startLocked(symbol string, book Book) *InstrumentActor {
	a := NewInstrumentActor(symbol, book, e.cfg.ActorCfg, e.bus, e.cfg.Snapshots)
	e.actors[symbol] = a
	e.wg.Add(1)
	safe.Go(func() {
		defer e.wg.Done()
		a.Run(e.ctx)
	})
	logger.Info(e.ctx, "instrument actor started", zap.String("symbol", symbol))
	return a
}

// Actor 取品种的 actor，未注册时尝试用 BookFactory 懒创建
func (e *Engine) Actor(symbol string) (*InstrumentActor, error) {
	// 1) 快路径：读锁查
	e.mu.RLock()
	a := e.actors[symbol]
	e.mu.RUnlock()
	if a != nil {
		return a, nil
	}

	// 2) 慢路径：写锁双检 + 创建
	e.mu.Lock()
	defer e.mu.Unlock()
	if a = e.actors[symbol]; a != nil {
		return a, nil
	}
	if e.cfg.BookFactory == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	if e.ctx.Err() != nil {
		return nil, ErrStopped
	}
	book, err := e.cfg.BookFactory(symbol)
	if err != nil {
		return nil, err
	}
	return e.startLocked(symbol, book), nil
}

// TrySubmit 非阻塞投递，结果只通过事件体现
func (e *Engine) TrySubmit(symbol string, reqID uint64, o matching.Order) error {
	a, err := e.Actor(symbol)
	if err != nil {
		return err
	}
	return a.TryEnqueue(Command{ReqID: reqID, Order: o})
}

// Submit 阻塞投递并等待处理结果
func (e *Engine) Submit(ctx context.Context, symbol string, reqID uint64, o matching.Order) (Result, error) {
	a, err := e.Actor(symbol)
	if err != nil {
		return Result{}, err
	}
	return a.Submit(ctx, reqID, o)
}

// Snapshot 品种最近一次发布的快照
func (e *Engine) Snapshot(symbol string, depth int) (matching.Snapshot, error) {
	e.mu.RLock()
	a := e.actors[symbol]
	e.mu.RUnlock()
	if a == nil {
		return matching.Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return a.Snapshot(depth), nil
}

// Symbols 已注册品种，排序后返回
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.actors))
	for s := range e.actors {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Stop 通知所有 actor 退出
func (e *Engine) Stop() { e.cancel() }

// Wait 等待所有 actor 退出
func (e *Engine) Wait() { e.wg.Wait() }
