package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"gopherbook.com/internal/matching"
)

// ErrParse 指令格式错误。消息被丢弃，连接保持
var ErrParse = errors.New("parse error")

// Decoder 把一行 key=value 文本解码成订单
type Decoder interface {
	Decode(raw string) (matching.Order, error)
}

// DecoderFunc 函数适配成 Decoder
type DecoderFunc func(raw string) (matching.Order, error)

func (f DecoderFunc) Decode(raw string) (matching.Order, error) { return f(raw) }

// 每条指令都必须带的键
var requiredKeys = []string{"id", "action", "side", "quantity", "price"}

// Shape 一种订单形态：数量是否允许小数，以及额外允许的可选键
type Shape struct {
	Fractional bool
	StopPrice  bool
}

var (
	// Integer 标准形态：整数数量
	Integer = Shape{}
	// Fractional 自定义形态：小数数量，可带 stop_price
	Fractional = Shape{Fractional: true, StopPrice: true}
)

func (s Shape) Decode(raw string) (matching.Order, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return matching.Order{}, fmt.Errorf("%w: empty instruction", ErrParse)
	}

	kv := make(map[string]string, len(fields))
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" || v == "" {
			return matching.Order{}, fmt.Errorf("%w: malformed field %q", ErrParse, f)
		}
		if !s.known(k) {
			return matching.Order{}, fmt.Errorf("%w: unknown key %q", ErrParse, k)
		}
		if _, dup := kv[k]; dup {
			return matching.Order{}, fmt.Errorf("%w: duplicate key %q", ErrParse, k)
		}
		kv[k] = v
	}
	for _, k := range requiredKeys {
		if _, ok := kv[k]; !ok {
			return matching.Order{}, fmt.Errorf("%w: missing key %q", ErrParse, k)
		}
	}

	var (
		o   matching.Order
		err error
	)
	if o.ID, err = strconv.ParseUint(kv["id"], 10, 64); err != nil {
		return matching.Order{}, keyErr("id", kv["id"])
	}
	// action 超出 0/1/2 不算格式错误，交给订单簿拒绝
	action, err := strconv.ParseUint(kv["action"], 10, 8)
	if err != nil {
		return matching.Order{}, keyErr("action", kv["action"])
	}
	o.Action = matching.Action(action)

	side, err := strconv.ParseUint(kv["side"], 10, 8)
	if err != nil || !matching.Side(side).Valid() {
		return matching.Order{}, keyErr("side", kv["side"])
	}
	o.Side = matching.Side(side)

	if o.Quantity, err = s.quantity(kv["quantity"]); err != nil {
		return matching.Order{}, keyErr("quantity", kv["quantity"])
	}
	if o.Price, err = decimal.NewFromString(kv["price"]); err != nil {
		return matching.Order{}, keyErr("price", kv["price"])
	}

	if v, ok := kv["orig_price"]; ok {
		p, err := decimal.NewFromString(v)
		if err != nil {
			return matching.Order{}, keyErr("orig_price", v)
		}
		o.OrigPrice = decimal.NewNullDecimal(p)
	}
	if v, ok := kv["orig_quantity"]; ok {
		q, err := s.quantity(v)
		if err != nil {
			return matching.Order{}, keyErr("orig_quantity", v)
		}
		o.OrigQuantity = decimal.NewNullDecimal(q)
	}
	if v, ok := kv["stop_price"]; ok {
		p, err := decimal.NewFromString(v)
		if err != nil {
			return matching.Order{}, keyErr("stop_price", v)
		}
		o.StopPrice = decimal.NewNullDecimal(p)
	}
	return o, nil
}

func (s Shape) known(k string) bool {
	switch k {
	case "id", "action", "side", "quantity", "price", "orig_price", "orig_quantity":
		return true
	case "stop_price":
		return s.StopPrice
	}
	return false
}

// quantity 非负。整数形态拒绝小数和带符号写法
func (s Shape) quantity(v string) (decimal.Decimal, error) {
	if !s.Fractional {
		if _, err := strconv.ParseUint(v, 10, 64); err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(v)
	}
	q, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if q.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("negative quantity %s", v)
	}
	return q, nil
}

func keyErr(key, val string) error {
	return fmt.Errorf("%w: bad value for %q: %q", ErrParse, key, val)
}

// Encode 把订单写回线上格式，客户端和测试使用
func Encode(o matching.Order) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "id=%d action=%d side=%d quantity=%s price=%s",
		o.ID, uint8(o.Action), uint8(o.Side), o.Quantity.String(), o.Price.String())
	if o.OrigPrice.Valid {
		sb.WriteString(" orig_price=" + o.OrigPrice.Decimal.String())
	}
	if o.OrigQuantity.Valid {
		sb.WriteString(" orig_quantity=" + o.OrigQuantity.Decimal.String())
	}
	if o.StopPrice.Valid {
		sb.WriteString(" stop_price=" + o.StopPrice.Decimal.String())
	}
	return sb.String()
}
