package matching

import (
	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

// Level 一个价位的只读副本。聚合簿 Orders 为 nil，逐笔簿按 FIFO 顺序
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Orders   []Order
}

// PriceLevelIndex 单边盘口的只读视图，最优价在前
type PriceLevelIndex interface {
	Side() Side
	Len() int
	Best() (Level, bool)
	Get(price decimal.Decimal) (Level, bool)
	// Ascend 从最优价往外遍历，fn 返回 false 时停止
	Ascend(fn func(Level) bool)
	// Levels 最多返回 depth 档，depth <= 0 表示全部
	Levels(depth int) []Level
}

const btreeDegree = 16

type sideIndex struct {
	side Side
	tree *btree.BTreeG[*priceLevel]
}

var _ PriceLevelIndex = (*sideIndex)(nil)

func newSideIndex(side Side) *sideIndex {
	// 买盘降序、卖盘升序，Min 永远是最优价
	less := func(a, b *priceLevel) bool { return a.price.LessThan(b.price) }
	if side == Buy {
		less = func(a, b *priceLevel) bool { return a.price.GreaterThan(b.price) }
	}
	return &sideIndex{side: side, tree: btree.NewG(btreeDegree, less)}
}

func (x *sideIndex) Side() Side { return x.side }
func (x *sideIndex) Len() int   { return x.tree.Len() }

func (x *sideIndex) Best() (Level, bool) {
	l := x.best()
	if l == nil {
		return Level{}, false
	}
	return l.view(), true
}

func (x *sideIndex) Get(price decimal.Decimal) (Level, bool) {
	l := x.level(price)
	if l == nil {
		return Level{}, false
	}
	return l.view(), true
}

func (x *sideIndex) Ascend(fn func(Level) bool) {
	x.tree.Ascend(func(l *priceLevel) bool {
		return fn(l.view())
	})
}

func (x *sideIndex) Levels(depth int) []Level {
	n := x.tree.Len()
	if depth > 0 && depth < n {
		n = depth
	}
	out := make([]Level, 0, n)
	x.tree.Ascend(func(l *priceLevel) bool {
		out = append(out, l.view())
		return len(out) < n
	})
	return out
}

func (x *sideIndex) best() *priceLevel {
	l, ok := x.tree.Min()
	if !ok {
		return nil
	}
	return l
}

func (x *sideIndex) level(price decimal.Decimal) *priceLevel {
	l, ok := x.tree.Get(&priceLevel{price: price})
	if !ok {
		return nil
	}
	return l
}

// upsert 返回该价位的桶，不存在就新建一个空桶
func (x *sideIndex) upsert(price decimal.Decimal) *priceLevel {
	if l := x.level(price); l != nil {
		return l
	}
	l := &priceLevel{price: price, qty: decimal.Zero}
	x.tree.ReplaceOrInsert(l)
	return l
}

// 桶空了就从树上摘掉
func (x *sideIndex) evictIfEmpty(l *priceLevel) {
	if l.empty() {
		x.tree.Delete(l)
	}
}
