package marketdata

import (
	"github.com/segmentio/encoding/json"

	"gopherbook.com/internal/engine"
	"gopherbook.com/internal/matching"
)

func BookTopic(symbol string) string  { return "book:" + symbol }
func TradeTopic(symbol string) string { return "trades:" + symbol }

type OrderDTO struct {
	ID       uint64 `json:"id"`
	Quantity string `json:"quantity"`
	Seq      uint64 `json:"seq"`
}

type LevelDTO struct {
	Price    string     `json:"price"`
	Quantity string     `json:"quantity"`
	Orders   []OrderDTO `json:"orders,omitempty"` // 仅逐笔簿
}

// BookDTO 对外的盘口快照，HTTP、broker 和 Redis 共用
type BookDTO struct {
	Type    string     `json:"type"` // "book"
	Symbol  string     `json:"symbol"`
	Variant string     `json:"variant"`
	Depth   int        `json:"depth"`
	Seq     uint64     `json:"seq"`
	Bids    []LevelDTO `json:"bids"`
	Asks    []LevelDTO `json:"asks"`
}

// TradeDTO 成交推送
type TradeDTO struct {
	Type         string `json:"type"` // "trade"
	Symbol       string `json:"symbol"`
	Seq          uint64 `json:"seq"`
	TakerOrderID uint64 `json:"taker_order_id"`
	MakerOrderID uint64 `json:"maker_order_id,omitempty"`
	Price        string `json:"price"`
	Qty          string `json:"qty"`
}

func ToDTO(symbol string, s matching.Snapshot) BookDTO {
	return BookDTO{
		Type:    "book",
		Symbol:  symbol,
		Variant: s.Variant.String(),
		Depth:   s.Depth,
		Seq:     s.Seq,
		Bids:    levelsDTO(s.Bids),
		Asks:    levelsDTO(s.Asks),
	}
}

func levelsDTO(levels []matching.Level) []LevelDTO {
	out := make([]LevelDTO, 0, len(levels))
	for _, lv := range levels {
		dto := LevelDTO{Price: lv.Price.String(), Quantity: lv.Quantity.String()}
		if len(lv.Orders) > 0 {
			dto.Orders = make([]OrderDTO, 0, len(lv.Orders))
			for _, o := range lv.Orders {
				dto.Orders = append(dto.Orders, OrderDTO{ID: o.ID, Quantity: o.Quantity.String(), Seq: o.Seq})
			}
		}
		out = append(out, dto)
	}
	return out
}

func EncodeBook(symbol string, s matching.Snapshot) ([]byte, error) {
	return json.Marshal(ToDTO(symbol, s))
}

func DecodeBook(b []byte) (BookDTO, error) {
	var dto BookDTO
	err := json.Unmarshal(b, &dto)
	return dto, err
}

// EncodeTrade 只接受成交事件
func EncodeTrade(ev engine.Event) ([]byte, bool, error) {
	if ev.Type != engine.EvTrade {
		return nil, false, nil
	}
	b, err := json.Marshal(TradeDTO{
		Type:         "trade",
		Symbol:       ev.Symbol,
		Seq:          ev.Seq,
		TakerOrderID: ev.TakerOrderID,
		MakerOrderID: ev.MakerOrderID,
		Price:        ev.Price.String(),
		Qty:          ev.Qty.String(),
	})
	return b, true, err
}
