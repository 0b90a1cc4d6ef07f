package matching

// Snapshot 订单簿在某个序号时刻的只读副本，按档位截断
type Snapshot struct {
	Variant Variant
	Depth   int
	Seq     uint64
	Bids    []Level
	Asks    []Level
}

// Snapshot 生成快照。depth <= 0 使用订单簿配置的深度；
// 两者都设置时取较小值。深度只影响展示，不影响挂单
func (b *OrderBook) Snapshot(depth int) Snapshot {
	limit := b.depth
	if depth > 0 && (limit == 0 || depth < limit) {
		limit = depth
	}
	return Snapshot{
		Variant: b.variant,
		Depth:   limit,
		Seq:     b.lastSeq,
		Bids:    b.bids.Levels(limit),
		Asks:    b.asks.Levels(limit),
	}
}

// Best 双边最优价位
func (s Snapshot) Best() (bid, ask Level, hasBid, hasAsk bool) {
	if len(s.Bids) > 0 {
		bid, hasBid = s.Bids[0], true
	}
	if len(s.Asks) > 0 {
		ask, hasAsk = s.Asks[0], true
	}
	return
}
