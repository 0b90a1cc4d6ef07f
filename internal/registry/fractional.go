package registry

import (
	"gopherbook.com/internal/codec"
	"gopherbook.com/internal/matching"
)

// Fractional 自带的自定义形态：小数数量，逐笔簿，价格时间优先撮合。
// 带 stop_price 的订单在对手方最优价越过止损价之前被拒绝
const Fractional = CustomPrefix + "fractional"

func init() {
	if err := Register("fractional", Variant{
		Decoder: codec.Fractional,
		Book:    matching.Granular,
		Policy:  matching.StopLimitPolicy{},
	}); err != nil {
		panic(err)
	}
}
