package engine

import (
	"errors"

	"github.com/shopspring/decimal"

	"gopherbook.com/internal/matching"
)

// Command 投递到品种 mailbox 的一条指令
type Command struct {
	ReqID uint64 // 上游追踪用
	Order matching.Order

	// reply 非空时 actor 处理完回写结果（Submit 同步等待）；
	// TrySubmit 入队即返回，结果只通过事件体现
	reply chan Result
}

// Result 一条指令的处理结果
type Result struct {
	Seq uint64 // 本次调用打上的序号，撤单和未打序号的拒绝为 0
	Err error
}

type EventType uint8

const (
	EvAccepted EventType = iota + 1 // 已生效
	EvRejected                      // 被拒绝，订单簿不变
	EvTrade                         // 成交
)

func (t EventType) String() string {
	switch t {
	case EvAccepted:
		return "accepted"
	case EvRejected:
		return "rejected"
	case EvTrade:
		return "trade"
	default:
		return "unknown"
	}
}

type Event struct {
	Type   EventType       `json:"type"`
	Symbol string          `json:"symbol"`
	Seq    uint64          `json:"seq"` // 本次调用打上的序号，没有则为 0
	ReqID  uint64          `json:"req_id,omitempty"`
	Action matching.Action `json:"action"`

	OrderID uint64 `json:"order_id,omitempty"`

	// Trade 字段
	MakerOrderID uint64          `json:"maker_order_id,omitempty"`
	TakerOrderID uint64          `json:"taker_order_id,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Qty          decimal.Decimal `json:"qty"`

	// 非热路径：拒单原因
	Reason string `json:"reason,omitempty"`
}

// 定义错误
var (
	ErrEngineBusy      = errors.New("engine busy: mailbox full")
	ErrUnknownSymbol   = errors.New("unknown symbol")
	ErrDuplicateSymbol = errors.New("symbol already registered")
	ErrStopped         = errors.New("engine stopped")
)
