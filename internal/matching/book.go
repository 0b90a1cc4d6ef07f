package matching

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Variant 订单簿的细节层级
type Variant uint8

const (
	Aggregated Variant = iota // level-2：价格 -> 总量
	Granular                  // level-3：价格 -> FIFO 订单队列
)

func (v Variant) String() string {
	switch v {
	case Aggregated:
		return "aggregated"
	case Granular:
		return "granular"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// TradeSink 接收一次成功调用产生的成交
type TradeSink func(Trade)

// slot 逐笔簿里订单所在的 (方向, 价格)
type slot struct {
	side  Side
	price decimal.Decimal
}

// OrderBook 单个品种的全部可变状态。
// 不加锁：同一本簿的所有调用必须串行（由 engine 的 actor 保证）
type OrderBook struct {
	variant Variant
	depth   int
	policy  MatchingPolicy

	bids *sideIndex
	asks *sideIndex
	byID map[uint64]slot // 仅逐笔簿使用：orderID -> 所在价位

	lastSeq uint64

	// 单次调用内的状态
	journal []func() // 回滚用的逆操作
	pending []Trade
	failErr error

	sink TradeSink
}

func newOrderBook(variant Variant, depth int, policy MatchingPolicy) *OrderBook {
	if policy == nil {
		policy = PassivePolicy{}
	}
	if depth < 0 {
		depth = 0
	}
	b := &OrderBook{
		variant: variant,
		depth:   depth,
		policy:  policy,
		bids:    newSideIndex(Buy),
		asks:    newSideIndex(Sell),
	}
	if variant == Granular {
		b.byID = make(map[uint64]slot, 1024)
	}
	return b
}

// NewAggregatedBook 聚合（level-2）订单簿，depth 为 0 表示不限档位
func NewAggregatedBook(depth int, policy MatchingPolicy) *OrderBook {
	return newOrderBook(Aggregated, depth, policy)
}

// NewGranularBook 逐笔（level-3）订单簿
func NewGranularBook(depth int, policy MatchingPolicy) *OrderBook {
	return newOrderBook(Granular, depth, policy)
}

func (b *OrderBook) Variant() Variant       { return b.variant }
func (b *OrderBook) Depth() int             { return b.depth }
func (b *OrderBook) Policy() MatchingPolicy { return b.policy }

// LastSeq 最近一次打上的序号
func (b *OrderBook) LastSeq() uint64 { return b.lastSeq }

func (b *OrderBook) SetTradeSink(sink TradeSink) { b.sink = sink }

func (b *OrderBook) SideIndex(side Side) PriceLevelIndex {
	return b.side(side)
}

func (b *OrderBook) side(s Side) *sideIndex {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

// HandleIncomingOrder 唯一入口，严格按 action 分发。
// 要么完整生效，要么订单簿保持不变
func (b *OrderBook) HandleIncomingOrder(o Order) error {
	switch o.Action {
	case ActionAdd, ActionModify:
		if !o.Side.Valid() {
			return fmt.Errorf("%w: %d", ErrInvalidSide, uint8(o.Side))
		}
		if !o.Quantity.IsPositive() {
			return fmt.Errorf("%w: %s", ErrInvalidQuantity, o.Quantity)
		}
		// 序号不回收：失败的调用也会占用一个序号
		b.lastSeq++
		o = o.WithSeq(b.lastSeq)
	case ActionCancel:
		if !o.Side.Valid() {
			return fmt.Errorf("%w: %d", ErrInvalidSide, uint8(o.Side))
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedAction, o.Action)
	}

	b.begin()
	var err error
	switch o.Action {
	case ActionAdd:
		err = b.handleNew(o)
	case ActionModify:
		err = b.handleReplace(o)
	case ActionCancel:
		err = b.handleCancel(o)
	}
	if err == nil {
		err = b.failErr
	}
	if err != nil {
		b.rollback()
		return err
	}
	b.commit()
	return nil
}

func (b *OrderBook) handleNew(o Order) error {
	if b.variant == Granular && b.Contains(o.ID) {
		return fmt.Errorf("%w: id=%d", ErrDuplicateOrder, o.ID)
	}
	if h, ok := b.policy.(NewOrderHandler); ok {
		return h.HandleNew(o, b)
	}
	return DefaultNew(b.policy, o, b)
}

func (b *OrderBook) handleReplace(o Order) error {
	if h, ok := b.policy.(ReplaceHandler); ok {
		return h.HandleReplace(o, b)
	}
	return DefaultReplace(b.policy, o, b)
}

func (b *OrderBook) handleCancel(o Order) error {
	if h, ok := b.policy.(CancelHandler); ok {
		return h.HandleCancel(o, b)
	}
	return b.policy.RemoveOrder(o, b)
}

func (b *OrderBook) begin() {
	b.journal = b.journal[:0]
	b.pending = b.pending[:0]
	b.failErr = nil
}

// rollback 逆序执行逆操作
func (b *OrderBook) rollback() {
	for i := len(b.journal) - 1; i >= 0; i-- {
		b.journal[i]()
		b.journal[i] = nil
	}
	b.journal = b.journal[:0]
	b.pending = b.pending[:0]
	b.failErr = nil
}

func (b *OrderBook) commit() {
	for i := range b.journal {
		b.journal[i] = nil
	}
	b.journal = b.journal[:0]
	if b.sink != nil {
		for _, t := range b.pending {
			b.sink(t)
		}
	}
	b.pending = b.pending[:0]
}

func (b *OrderBook) record(undo func()) {
	b.journal = append(b.journal, undo)
}

// Fail 在 Match 里报告错误：本次调用结束后整体回滚并返回 err
func (b *OrderBook) Fail(err error) {
	if err != nil && b.failErr == nil {
		b.failErr = err
	}
}

// EmitTrade 暂存成交，调用成功后才交给 TradeSink
func (b *OrderBook) EmitTrade(t Trade) {
	b.pending = append(b.pending, t)
}

// Contains 逐笔簿里该 id 是否有挂单；聚合簿没有身份，恒为 false
func (b *OrderBook) Contains(id uint64) bool {
	if b.byID == nil {
		return false
	}
	_, ok := b.byID[id]
	return ok
}

// Lookup 逐笔簿按 id 取挂单副本
func (b *OrderBook) Lookup(id uint64) (Order, bool) {
	s, ok := b.byID[id]
	if !ok {
		return Order{}, false
	}
	lv := b.side(s.side).level(s.price)
	if lv == nil {
		return Order{}, false
	}
	i := lv.indexOf(id)
	if i < 0 {
		return Order{}, false
	}
	return lv.orders[i], true
}
