package matching

import "github.com/shopspring/decimal"

// CrossingPolicy 价格优先、时间优先的撮合策略。
// 买单从最低卖价开始吃 <= 限价的卖盘，卖单从最高买价开始吃 >= 限价的买盘；
// 同价位先到先成交。没成交完的剩余部分通过 AddOrder 挂单
type CrossingPolicy struct {
	PassivePolicy
}

// Match 只有完全成交时才返回 true
func (p CrossingPolicy) Match(taker Order, b *OrderBook) bool {
	remaining := p.cross(taker, b)
	if b.failErr != nil {
		return true
	}
	if remaining.IsZero() {
		return true
	}
	if remaining.Equal(taker.Quantity) {
		return false
	}
	// 部分成交：剩余数量走订单簿绑定策略的 AddOrder 挂单，保留原来的 Seq。
	// 嵌入 CrossingPolicy 的策略覆盖 AddOrder 时这里同样生效
	if err := b.policy.AddOrder(taker.WithQuantity(remaining), b); err != nil {
		b.Fail(err)
	}
	return true
}

// crossable 对手方这个价格能否成交
func crossable(taker Order, makerPrice decimal.Decimal) bool {
	if taker.Side == Buy {
		return makerPrice.LessThanOrEqual(taker.Price)
	}
	return makerPrice.GreaterThanOrEqual(taker.Price)
}

func (p CrossingPolicy) cross(taker Order, b *OrderBook) decimal.Decimal {
	remaining := taker.Quantity
	book := b.side(taker.Side.Opposite())
	for remaining.IsPositive() {
		// 1) 拿到对手方最优价的桶
		lv := book.best()
		if lv == nil || !crossable(taker, lv.price) {
			break
		}
		// 2) 聚合簿没有订单身份，直接扣价位总量
		if b.variant == Aggregated {
			exec := decimal.Min(remaining, lv.qty)
			if err := b.Reduce(Order{Side: book.side, Price: lv.price}, exec); err != nil {
				b.Fail(err)
				return remaining
			}
			b.EmitTrade(Trade{TakerID: taker.ID, TakerSide: taker.Side, Price: lv.price, Qty: exec})
			remaining = remaining.Sub(exec)
			continue
		}
		// 3) 逐笔簿：队首先成交
		maker := lv.orders[0]
		exec := decimal.Min(remaining, maker.Quantity)
		if err := b.Reduce(maker, exec); err != nil {
			b.Fail(err)
			return remaining
		}
		b.EmitTrade(Trade{
			TakerID:   taker.ID,
			MakerID:   maker.ID,
			TakerSide: taker.Side,
			Price:     maker.Price,
			Qty:       exec,
		})
		remaining = remaining.Sub(exec)
	}
	return remaining
}
