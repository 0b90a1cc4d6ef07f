package matching

import (
	"errors"
	"fmt"
)

// ErrStopNotTriggered 止损价还没被触发，订单不进簿
var ErrStopNotTriggered = errors.New("stop price not triggered")

// StopLimitPolicy 在 CrossingPolicy 之上处理 StopPrice。
// 买单要求最优卖价 >= 止损价，卖单要求最优买价 <= 止损价；
// 触发后按普通限价单撮合，未触发直接拒绝（不保存待触发的单）。
// 不带 StopPrice 的订单和 CrossingPolicy 完全一致
type StopLimitPolicy struct {
	CrossingPolicy
}

var (
	_ MatchingPolicy  = StopLimitPolicy{}
	_ NewOrderHandler = StopLimitPolicy{}
)

// HandleNew 新单和改单的挂单部分都会经过这里
func (StopLimitPolicy) HandleNew(o Order, b *OrderBook) error {
	if o.StopPrice.Valid && !stopTriggered(o, b) {
		return fmt.Errorf("%w: %s stop=%s", ErrStopNotTriggered, o.Side, o.StopPrice.Decimal)
	}
	return DefaultNew(b.policy, o, b)
}

// stopTriggered 对手方最优价是否已经越过止损价，对手方为空时不触发
func stopTriggered(o Order, b *OrderBook) bool {
	ref := b.side(o.Side.Opposite()).best()
	if ref == nil {
		return false
	}
	stop := o.StopPrice.Decimal
	if o.Side == Buy {
		return ref.price.GreaterThanOrEqual(stop)
	}
	return ref.price.LessThanOrEqual(stop)
}
