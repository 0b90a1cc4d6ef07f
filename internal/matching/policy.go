package matching

import "fmt"

// MatchingPolicy 可替换的撮合策略，本身无状态，可以被多个品种共用。
//
//   - Match：新订单先尝试撮合。返回 true 表示已完全处理，不再挂单；
//     返回 false 则交给 AddOrder 挂单。出错时调用 b.Fail
//   - AddOrder：把订单挂到簿上
//   - RemoveOrder：撤掉订单指向的挂单
type MatchingPolicy interface {
	Match(o Order, b *OrderBook) bool
	AddOrder(o Order, b *OrderBook) error
	RemoveOrder(o Order, b *OrderBook) error
}

// 可选：整体覆盖某条处理流程。通过类型断言检测

type NewOrderHandler interface {
	HandleNew(o Order, b *OrderBook) error
}

type ReplaceHandler interface {
	HandleReplace(o Order, b *OrderBook) error
}

type CancelHandler interface {
	HandleCancel(o Order, b *OrderBook) error
}

// DefaultNew 默认新单流程：Match，未处理则 AddOrder
func DefaultNew(p MatchingPolicy, o Order, b *OrderBook) error {
	if p.Match(o, b) {
		return nil
	}
	if b.failErr != nil {
		return b.failErr
	}
	return p.AddOrder(o, b)
}

// DefaultReplace 默认改单流程：先撤旧状态，再按新单处理。
// 新单排到队尾，失去原有的时间优先级
func DefaultReplace(p MatchingPolicy, o Order, b *OrderBook) error {
	if err := p.RemoveOrder(o.Prior(), b); err != nil {
		return err
	}
	return b.handleNew(o)
}

// PassivePolicy 默认策略：从不撮合，撤不存在的单静默忽略
type PassivePolicy struct{}

func (PassivePolicy) Match(Order, *OrderBook) bool { return false }

func (PassivePolicy) AddOrder(o Order, b *OrderBook) error { return b.Rest(o) }

func (PassivePolicy) RemoveOrder(o Order, b *OrderBook) error {
	b.Evict(o)
	return nil
}

// StrictPolicy 和 PassivePolicy 一样不撮合，但撤单（包括改单的撤单部分）
// 找不到挂单时返回 ErrOrderNotFound
type StrictPolicy struct {
	PassivePolicy
}

func (StrictPolicy) RemoveOrder(o Order, b *OrderBook) error {
	if _, ok := b.Evict(o); !ok {
		return fmt.Errorf("%w: id=%d %s@%s", ErrOrderNotFound, o.ID, o.Side, o.Price)
	}
	return nil
}

var (
	_ MatchingPolicy = PassivePolicy{}
	_ MatchingPolicy = StrictPolicy{}
	_ MatchingPolicy = CrossingPolicy{}
)
