package matching

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// Opposite 返回 s 方向的订单可以成交的对手方
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) Valid() bool { return s == Buy || s == Sell }

type Action uint8

const (
	ActionAdd Action = iota
	ActionModify
	ActionCancel
)

func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "add"
	case ActionModify:
		return "modify"
	case ActionCancel:
		return "cancel"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// Order 一条客户端指令（值类型）。订单簿写入时拷贝，对外只返回副本
type Order struct {
	ID       uint64
	Action   Action
	Side     Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
	// Seq 到达序号，add/modify 时由订单簿打上
	Seq uint64

	// OrigPrice/OrigQuantity 指向 modify 要替换的旧挂单状态。
	// 改价时必须带 orig_price，撤单部分按旧的 (方向, 价格) 定位
	OrigPrice    decimal.NullDecimal
	OrigQuantity decimal.NullDecimal

	// StopPrice 自定义订单形态携带，订单簿不使用
	StopPrice decimal.NullDecimal
}

func (o Order) WithSeq(seq uint64) Order {
	o.Seq = seq
	return o
}

func (o Order) WithQuantity(q decimal.Decimal) Order {
	o.Quantity = q
	return o
}

// Prior 返回 o 所替换的旧状态（以撤单形式）
func (o Order) Prior() Order {
	p := o
	p.Action = ActionCancel
	if o.OrigPrice.Valid {
		p.Price = o.OrigPrice.Decimal
	}
	if o.OrigQuantity.Valid {
		p.Quantity = o.OrigQuantity.Decimal
	}
	return p
}

func (o Order) String() string {
	return fmt.Sprintf("order{id=%d %s %s %s@%s seq=%d}",
		o.ID, o.Action, o.Side, o.Quantity.String(), o.Price.String(), o.Seq)
}

// Trade 撮合策略产生的一笔成交
type Trade struct {
	TakerID   uint64
	MakerID   uint64
	TakerSide Side
	Price     decimal.Decimal
	Qty       decimal.Decimal
}

var (
	ErrUnsupportedAction = errors.New("unsupported order action")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidQuantity   = errors.New("order quantity must be positive")
	ErrInvalidSide       = errors.New("invalid order side")
	ErrDuplicateOrder    = errors.New("order id already resting")
)
