package matching

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func add(id uint64, side Side, price, qty string) Order {
	return Order{ID: id, Action: ActionAdd, Side: side, Price: d(price), Quantity: d(qty)}
}

func modify(id uint64, side Side, price, qty string) Order {
	o := add(id, side, price, qty)
	o.Action = ActionModify
	return o
}

func cancel(id uint64, side Side, price, qty string) Order {
	o := add(id, side, price, qty)
	o.Action = ActionCancel
	return o
}

// from 改价时带上旧价格，撤单部分按旧价格定位
func from(o Order, origPrice string) Order {
	o.OrigPrice = decimal.NewNullDecimal(d(origPrice))
	return o
}

// levelQty 某价位的总量，不存在返回 ""
func levelQty(b *OrderBook, side Side, price string) string {
	lv, ok := b.SideIndex(side).Get(d(price))
	if !ok {
		return ""
	}
	return lv.Quantity.String()
}

func fifoIDs(t *testing.T, b *OrderBook, side Side, price string) []uint64 {
	t.Helper()
	lv, ok := b.SideIndex(side).Get(d(price))
	if !ok {
		return nil
	}
	ids := make([]uint64, 0, len(lv.Orders))
	for _, o := range lv.Orders {
		ids = append(ids, o.ID)
	}
	return ids
}

func apply(t *testing.T, b *OrderBook, orders ...Order) {
	t.Helper()
	for _, o := range orders {
		require.NoError(t, b.HandleIncomingOrder(o), o.String())
	}
}

func TestAggregatedScenario(t *testing.T) {
	b := NewAggregatedBook(0, PassivePolicy{})

	apply(t, b, add(1, Buy, "100", "10"))
	assert.Equal(t, "10", levelQty(b, Buy, "100"))

	apply(t, b, add(2, Buy, "100", "5"))
	assert.Equal(t, "15", levelQty(b, Buy, "100"))

	apply(t, b, cancel(1, Buy, "100", "10"))
	assert.Equal(t, "5", levelQty(b, Buy, "100"))

	apply(t, b, cancel(2, Buy, "100", "5"))
	_, ok := b.SideIndex(Buy).Get(d("100"))
	assert.False(t, ok, "level 100 should be evicted")
	assert.Equal(t, 0, b.SideIndex(Buy).Len())
}

func TestGranularScenario(t *testing.T) {
	b := NewGranularBook(0, PassivePolicy{})

	apply(t, b, add(1, Buy, "100", "10"), add(2, Buy, "100", "5"))
	lv, ok := b.SideIndex(Buy).Get(d("100"))
	require.True(t, ok)
	require.Len(t, lv.Orders, 2)
	assert.Equal(t, uint64(1), lv.Orders[0].ID)
	assert.Equal(t, uint64(1), lv.Orders[0].Seq)
	assert.Equal(t, uint64(2), lv.Orders[1].ID)
	assert.Equal(t, uint64(2), lv.Orders[1].Seq)

	apply(t, b, cancel(1, Buy, "100", "10"))
	assert.Equal(t, []uint64{2}, fifoIDs(t, b, Buy, "100"))

	apply(t, b, modify(2, Buy, "100", "5"))
	lv, ok = b.SideIndex(Buy).Get(d("100"))
	require.True(t, ok)
	require.Len(t, lv.Orders, 1)
	assert.Equal(t, uint64(2), lv.Orders[0].ID)
	assert.Equal(t, uint64(3), lv.Orders[0].Seq)
	assert.Equal(t, "5", lv.Quantity.String())
}

func TestBestPriceOrdering(t *testing.T) {
	b := NewAggregatedBook(0, PassivePolicy{})
	apply(t, b,
		add(1, Buy, "99.5", "1"), add(2, Buy, "101", "1"), add(3, Buy, "100", "1"),
		add(4, Sell, "103", "1"), add(5, Sell, "102.25", "1"), add(6, Sell, "110", "1"),
	)

	var bids, asks []string
	b.SideIndex(Buy).Ascend(func(l Level) bool { bids = append(bids, l.Price.String()); return true })
	b.SideIndex(Sell).Ascend(func(l Level) bool { asks = append(asks, l.Price.String()); return true })
	assert.Equal(t, []string{"101", "100", "99.5"}, bids)
	assert.Equal(t, []string{"102.25", "103", "110"}, asks)

	best, ok := b.SideIndex(Sell).Best()
	require.True(t, ok)
	assert.Equal(t, "102.25", best.Price.String())
}

func TestQuantityConservation(t *testing.T) {
	agg := NewAggregatedBook(0, PassivePolicy{})
	gran := NewGranularBook(0, PassivePolicy{})
	seq := []Order{
		add(1, Sell, "10", "3"),
		add(2, Sell, "10", "4"),
		add(3, Sell, "11", "1.5"),
		cancel(2, Sell, "10", "4"),
		add(4, Sell, "10", "2"),
		cancel(3, Sell, "11", "1.5"),
	}
	apply(t, agg, seq...)
	apply(t, gran, seq...)

	// 10: 3+4-4+2 = 5，11: 1.5-1.5 = 0 被剔除
	assert.Equal(t, "5", levelQty(agg, Sell, "10"))
	assert.Equal(t, "5", levelQty(gran, Sell, "10"))
	assert.Equal(t, "", levelQty(agg, Sell, "11"))
	assert.Equal(t, "", levelQty(gran, Sell, "11"))

	gran.SideIndex(Sell).Ascend(func(l Level) bool {
		sum := decimal.Zero
		for _, o := range l.Orders {
			assert.True(t, o.Quantity.IsPositive())
			sum = sum.Add(o.Quantity)
		}
		assert.True(t, sum.Equal(l.Quantity), "level %s sum %s != %s", l.Price, sum, l.Quantity)
		return true
	})
}

func TestReplaceLosesTimePriority(t *testing.T) {
	b := NewGranularBook(0, PassivePolicy{})
	apply(t, b, add(1, Sell, "50", "1"), add(2, Sell, "50", "1"), add(3, Sell, "50", "1"))

	apply(t, b, modify(1, Sell, "50", "1"))
	assert.Equal(t, []uint64{2, 3, 1}, fifoIDs(t, b, Sell, "50"))

	lv, _ := b.SideIndex(Sell).Get(d("50"))
	for i := 1; i < len(lv.Orders); i++ {
		assert.Less(t, lv.Orders[i-1].Seq, lv.Orders[i].Seq)
	}
}

func TestReplaceMovesPrice(t *testing.T) {
	b := NewGranularBook(0, PassivePolicy{})
	apply(t, b, add(1, Buy, "100", "10"), add(2, Buy, "100", "5"))

	apply(t, b, from(modify(1, Buy, "101", "7"), "100"))
	assert.Equal(t, []uint64{2}, fifoIDs(t, b, Buy, "100"))
	assert.Equal(t, []uint64{1}, fifoIDs(t, b, Buy, "101"))
	assert.Equal(t, "7", levelQty(b, Buy, "101"))

	o, ok := b.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, "101", o.Price.String())
	assert.Equal(t, ActionAdd, o.Action)

	// 不带旧价格时撤单部分落空，新单和仍在簿上的同 id 冲突，整次调用回滚
	before := b.Snapshot(0)
	assert.ErrorIs(t, b.HandleIncomingOrder(modify(1, Buy, "102", "7")), ErrDuplicateOrder)
	assert.Equal(t, before.Bids, b.Snapshot(0).Bids)
}

func TestReplaceEqualsCancelThenAdd(t *testing.T) {
	viaModify := NewGranularBook(0, PassivePolicy{})
	viaPair := NewGranularBook(0, PassivePolicy{})

	apply(t, viaModify, add(1, Buy, "100", "10"), add(2, Buy, "100", "5"), from(modify(1, Buy, "99", "4"), "100"))
	apply(t, viaPair, add(1, Buy, "100", "10"), add(2, Buy, "100", "5"),
		cancel(1, Buy, "100", "10"), add(1, Buy, "99", "4"))

	assert.Equal(t, viaPair.Snapshot(0), viaModify.Snapshot(0))
}

func TestAggregatedReplaceUsesOrigFields(t *testing.T) {
	b := NewAggregatedBook(0, PassivePolicy{})
	apply(t, b, add(1, Buy, "100", "10"), add(2, Buy, "100", "5"))

	m := modify(1, Buy, "101", "4")
	m.OrigPrice = decimal.NewNullDecimal(d("100"))
	m.OrigQuantity = decimal.NewNullDecimal(d("10"))
	apply(t, b, m)

	assert.Equal(t, "5", levelQty(b, Buy, "100"))
	assert.Equal(t, "4", levelQty(b, Buy, "101"))

	// 没有 orig 字段时用自身价格和数量：先减后加，总量不变
	apply(t, b, modify(2, Buy, "101", "4"))
	assert.Equal(t, "4", levelQty(b, Buy, "101"))
}

func TestNoOpCancel(t *testing.T) {
	t.Run("granular unknown id", func(t *testing.T) {
		b := NewGranularBook(0, PassivePolicy{})
		apply(t, b, add(1, Buy, "100", "10"))
		before := b.Snapshot(0)
		require.NoError(t, b.HandleIncomingOrder(cancel(42, Buy, "100", "10")))
		assert.Equal(t, before, b.Snapshot(0))
	})

	t.Run("granular wrong side", func(t *testing.T) {
		b := NewGranularBook(0, PassivePolicy{})
		apply(t, b, add(1, Buy, "100", "10"))
		before := b.Snapshot(0)
		require.NoError(t, b.HandleIncomingOrder(cancel(1, Sell, "100", "10")))
		assert.Equal(t, before, b.Snapshot(0))
		assert.True(t, b.Contains(1))
	})

	t.Run("granular wrong price", func(t *testing.T) {
		b := NewGranularBook(0, PassivePolicy{})
		apply(t, b, add(1, Buy, "100", "10"))
		before := b.Snapshot(0)
		require.NoError(t, b.HandleIncomingOrder(cancel(1, Buy, "999", "10")))
		assert.Equal(t, before, b.Snapshot(0))
		assert.True(t, b.Contains(1))
	})

	t.Run("aggregated absent price", func(t *testing.T) {
		b := NewAggregatedBook(0, PassivePolicy{})
		apply(t, b, add(1, Buy, "100", "10"))
		before := b.Snapshot(0)
		require.NoError(t, b.HandleIncomingOrder(cancel(1, Buy, "101", "10")))
		assert.Equal(t, before, b.Snapshot(0))
	})

	t.Run("aggregated never underflows", func(t *testing.T) {
		b := NewAggregatedBook(0, PassivePolicy{})
		apply(t, b, add(1, Sell, "100", "3"))
		require.NoError(t, b.HandleIncomingOrder(cancel(1, Sell, "100", "10")))
		assert.Equal(t, "", levelQty(b, Sell, "100"))
		assert.Equal(t, 0, b.SideIndex(Sell).Len())
	})
}

func TestUnsupportedActionLeavesBookUnchanged(t *testing.T) {
	for _, b := range []*OrderBook{
		NewAggregatedBook(0, PassivePolicy{}),
		NewGranularBook(0, PassivePolicy{}),
	} {
		apply(t, b, add(1, Buy, "100", "10"))
		before := b.Snapshot(0)

		o := add(2, Buy, "100", "1")
		o.Action = Action(7)
		err := b.HandleIncomingOrder(o)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnsupportedAction))
		assert.Equal(t, before, b.Snapshot(0))
		assert.Equal(t, uint64(1), b.LastSeq())
	}
}

func TestValidation(t *testing.T) {
	b := NewGranularBook(0, PassivePolicy{})
	apply(t, b, add(1, Buy, "100", "10"))
	before := b.Snapshot(0)

	cases := []struct {
		name string
		o    Order
		want error
	}{
		{"zero quantity", add(2, Buy, "100", "0"), ErrInvalidQuantity},
		{"negative quantity", add(2, Buy, "100", "-1"), ErrInvalidQuantity},
		{"bad side", Order{ID: 2, Side: Side(9), Price: d("1"), Quantity: d("1")}, ErrInvalidSide},
		{"duplicate id", add(1, Sell, "105", "1"), ErrDuplicateOrder},
		{"modify to zero", modify(1, Buy, "100", "0"), ErrInvalidQuantity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := b.HandleIncomingOrder(tc.o)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, before.Bids, b.Snapshot(0).Bids)
			assert.Equal(t, before.Asks, b.Snapshot(0).Asks)
		})
	}
}

// rejectAbove 挂单价格超过 limit 时拒绝，用于验证回滚
type rejectAbove struct {
	PassivePolicy
	limit decimal.Decimal
}

var errTooHigh = errors.New("price too high")

func (p rejectAbove) AddOrder(o Order, b *OrderBook) error {
	if o.Price.GreaterThan(p.limit) {
		return errTooHigh
	}
	return b.Rest(o)
}

func TestReplaceRollsBackWhenAddFails(t *testing.T) {
	b := NewGranularBook(0, rejectAbove{limit: d("1000")})
	apply(t, b, add(1, Buy, "100", "10"), add(2, Buy, "100", "5"))
	before := b.Snapshot(0)

	err := b.HandleIncomingOrder(from(modify(1, Buy, "2000", "10"), "100"))
	require.ErrorIs(t, err, errTooHigh)

	after := b.Snapshot(0)
	assert.Equal(t, before.Bids, after.Bids)
	assert.Equal(t, []uint64{1, 2}, fifoIDs(t, b, Buy, "100"))
	assert.True(t, b.Contains(1))
}

func TestAggregatedReplaceRollsBack(t *testing.T) {
	b := NewAggregatedBook(0, rejectAbove{limit: d("1000")})
	apply(t, b, add(1, Sell, "100", "10"))

	m := modify(1, Sell, "2000", "10")
	m.OrigPrice = decimal.NewNullDecimal(d("100"))
	m.OrigQuantity = decimal.NewNullDecimal(d("10"))
	require.ErrorIs(t, b.HandleIncomingOrder(m), errTooHigh)
	assert.Equal(t, "10", levelQty(b, Sell, "100"))
	assert.Equal(t, 1, b.SideIndex(Sell).Len())
}

func TestSnapshotDepth(t *testing.T) {
	b := NewAggregatedBook(3, PassivePolicy{})
	for i, p := range []string{"100", "101", "102", "103", "104"} {
		apply(t, b, add(uint64(i+1), Buy, p, "1"), add(uint64(i+10), Sell, "20"+p, "1"))
	}

	// 深度只截断展示，挂单全部保留
	assert.Equal(t, 5, b.SideIndex(Buy).Len())

	s := b.Snapshot(0)
	assert.Equal(t, 3, s.Depth)
	require.Len(t, s.Bids, 3)
	assert.Equal(t, "104", s.Bids[0].Price.String())
	assert.Equal(t, "102", s.Bids[2].Price.String())
	require.Len(t, s.Asks, 3)
	assert.Equal(t, "20100", s.Asks[0].Price.String())

	assert.Len(t, b.Snapshot(2).Bids, 2)
	assert.Len(t, b.Snapshot(10).Bids, 3)

	unlimited := NewAggregatedBook(0, PassivePolicy{})
	for i := 0; i < 5; i++ {
		apply(t, unlimited, add(uint64(i+1), Buy, decimal.NewFromInt(int64(100+i)).String(), "1"))
	}
	assert.Len(t, unlimited.Snapshot(0).Bids, 5)

	bid, _, hasBid, hasAsk := s.Best()
	assert.True(t, hasBid)
	assert.True(t, hasAsk)
	assert.Equal(t, "104", bid.Price.String())
}

func TestReadAccessReturnsCopies(t *testing.T) {
	b := NewGranularBook(0, PassivePolicy{})
	apply(t, b, add(1, Buy, "100", "10"))

	lv, _ := b.SideIndex(Buy).Get(d("100"))
	lv.Orders[0].Quantity = d("999")

	again, _ := b.SideIndex(Buy).Get(d("100"))
	assert.Equal(t, "10", again.Orders[0].Quantity.String())
}
