package matching

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// 下面三个原语是策略修改订单簿的唯一途径。
// 每一步都记录逆操作，调用失败时由 HandleIncomingOrder 回滚

// Rest 挂单。聚合簿：该价位总量 += 数量；逐笔簿：追加到该价位队尾
func (b *OrderBook) Rest(o Order) error {
	if !o.Side.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSide, uint8(o.Side))
	}
	if !o.Quantity.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidQuantity, o.Quantity)
	}
	x := b.side(o.Side)
	if b.variant == Aggregated {
		lv := x.upsert(o.Price)
		lv.qty = lv.qty.Add(o.Quantity)
		price, qty := o.Price, o.Quantity
		b.record(func() {
			lv := x.level(price)
			lv.qty = lv.qty.Sub(qty)
			x.evictIfEmpty(lv)
		})
		return nil
	}

	// 重复 id 拒绝：每个身份最多占一个 (方向, 价格) 位置
	if _, exists := b.byID[o.ID]; exists {
		return fmt.Errorf("%w: id=%d", ErrDuplicateOrder, o.ID)
	}
	o.Action = ActionAdd
	lv := x.upsert(o.Price)
	lv.pushBack(o)
	b.byID[o.ID] = slot{side: o.Side, price: o.Price}
	id, price := o.ID, o.Price
	b.record(func() {
		lv := x.level(price)
		lv.removeAt(len(lv.orders) - 1)
		delete(b.byID, id)
		x.evictIfEmpty(lv)
	})
	return nil
}

// Evict 撤掉 o 指向的挂单，返回实际移除的部分。
// 聚合簿按 (方向, 价格) 定位，总量扣减到 0 为止，不会出现负数；
// 逐笔簿在 (方向, 价格) 的队列里按 id 查找，方向或价格对不上视为不存在
func (b *OrderBook) Evict(o Order) (Order, bool) {
	if b.variant == Aggregated {
		x := b.side(o.Side)
		lv := x.level(o.Price)
		if lv == nil || !o.Quantity.IsPositive() {
			return Order{}, false
		}
		dec := decimal.Min(o.Quantity, lv.qty)
		lv.qty = lv.qty.Sub(dec)
		x.evictIfEmpty(lv)
		price := o.Price
		b.record(func() {
			lv := x.upsert(price)
			lv.qty = lv.qty.Add(dec)
		})
		return o.WithQuantity(dec), true
	}

	s, ok := b.byID[o.ID]
	if !ok || s.side != o.Side || !s.price.Equal(o.Price) {
		return Order{}, false
	}
	x := b.side(s.side)
	lv := x.level(s.price)
	i := lv.indexOf(o.ID)
	removed := lv.removeAt(i)
	delete(b.byID, o.ID)
	x.evictIfEmpty(lv)
	b.record(func() {
		lv := x.upsert(s.price)
		lv.insertAt(i, removed)
		b.byID[removed.ID] = s
	})
	return removed, true
}

// Reduce 部分成交：把挂单数量减少 qty，减到 0 则移除。
// 逐笔簿按 maker.ID 定位；聚合簿按 (maker.Side, maker.Price) 定位。
// 部分成交保留队列位置，qty 超过挂单数量时报错
func (b *OrderBook) Reduce(maker Order, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidQuantity, qty)
	}
	if b.variant == Aggregated {
		x := b.side(maker.Side)
		lv := x.level(maker.Price)
		if lv == nil {
			return fmt.Errorf("%w: %s@%s", ErrOrderNotFound, maker.Side, maker.Price)
		}
		if qty.GreaterThan(lv.qty) {
			return fmt.Errorf("%w: reduce %s > resting %s", ErrInvalidQuantity, qty, lv.qty)
		}
		_, _ = b.Evict(Order{Side: maker.Side, Price: maker.Price, Quantity: qty})
		return nil
	}

	s, ok := b.byID[maker.ID]
	if !ok {
		return fmt.Errorf("%w: id=%d", ErrOrderNotFound, maker.ID)
	}
	x := b.side(s.side)
	lv := x.level(s.price)
	i := lv.indexOf(maker.ID)
	resting := lv.orders[i].Quantity
	switch qty.Cmp(resting) {
	case 1:
		return fmt.Errorf("%w: reduce %s > resting %s", ErrInvalidQuantity, qty, resting)
	case 0:
		_, _ = b.Evict(lv.orders[i])
		return nil
	}
	lv.orders[i].Quantity = resting.Sub(qty)
	lv.qty = lv.qty.Sub(qty)
	id := maker.ID
	b.record(func() {
		lv := x.level(s.price)
		j := lv.indexOf(id)
		lv.orders[j].Quantity = lv.orders[j].Quantity.Add(qty)
		lv.qty = lv.qty.Add(qty)
	})
	return nil
}
