package matching

import "github.com/shopspring/decimal"

// priceLevel 某一方向某一价格上的全部挂单
// 聚合簿只维护 qty；逐笔簿还维护 FIFO 队列，qty 为队列数量之和
type priceLevel struct {
	price  decimal.Decimal
	qty    decimal.Decimal
	orders []Order
}

// 同价位直接追加到队尾 => 天然满足 FIFO
func (l *priceLevel) pushBack(o Order) {
	l.orders = append(l.orders, o)
	l.qty = l.qty.Add(o.Quantity)
}

// indexOf 在队列里按订单 id 查找位置
func (l *priceLevel) indexOf(id uint64) int {
	for i := range l.orders {
		if l.orders[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *priceLevel) removeAt(i int) Order {
	o := l.orders[i]
	copy(l.orders[i:], l.orders[i+1:])
	l.orders[len(l.orders)-1] = Order{}
	l.orders = l.orders[:len(l.orders)-1]
	l.qty = l.qty.Sub(o.Quantity)
	return o
}

// insertAt 把 o 放回位置 i，用于回滚 removeAt
func (l *priceLevel) insertAt(i int, o Order) {
	l.orders = append(l.orders, Order{})
	copy(l.orders[i+1:], l.orders[i:])
	l.orders[i] = o
	l.qty = l.qty.Add(o.Quantity)
}

func (l *priceLevel) empty() bool {
	return !l.qty.IsPositive() && len(l.orders) == 0
}

func (l *priceLevel) view() Level {
	lv := Level{Price: l.price, Quantity: l.qty}
	if l.orders != nil {
		lv.Orders = make([]Order, len(l.orders))
		copy(lv.Orders, l.orders)
	}
	return lv
}
