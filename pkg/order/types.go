// Package order turns trade intents into exchange-ready order wires,
// applying the tick/lot precision and minimum-notional rules the exchange
// enforces. Construction is pure: no I/O, no side effects.
package order

import (
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientNotional = errors.New("order notional below minimum floor")
	ErrInvalidTimeInForce   = errors.New("invalid time-in-force")
	ErrInvalidPrecision     = errors.New("invalid precision spec")
	ErrMissingPrice         = errors.New("no price available for order")
)

type Type string

const (
	Market Type = "market"
	Limit  Type = "limit"
)

type TimeInForce string

const (
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	ALO TimeInForce = "ALO"
)

type Grouping string

const (
	GroupingNA           Grouping = "na"
	GroupingNormalTpsl   Grouping = "normalTpsl"
	GroupingPositionTpsl Grouping = "positionTpsl"
)

// Intent is an immutable trade request. For TP/SL intents IsBuy describes
// the position direction being protected (true = long); the emitted legs
// take the opposite side.
type Intent struct {
	Symbol     string
	IsBuy      bool
	Size       decimal.Decimal
	LimitPx    decimal.Decimal // zero for market intents: mid price is used
	Type       Type
	TIF        TimeInForce
	ReduceOnly bool
	Cloid      string // generated when empty

	// Trigger prices for TP/SL intents; zero means the leg is absent.
	TakeProfitPx decimal.Decimal
	StopLossPx   decimal.Decimal
}

// Wire is one order in the exchange's wire shape. Numeric fields are
// strings: the signed msgpack encoding and the JSON body must agree
// byte-for-byte, and floats cannot guarantee that.
type Wire struct {
	Asset      int      `json:"a" msgpack:"a"`
	IsBuy      bool     `json:"b" msgpack:"b"`
	Price      string   `json:"p" msgpack:"p"`
	Size       string   `json:"s" msgpack:"s"`
	ReduceOnly bool     `json:"r" msgpack:"r"`
	Type       TypeWire `json:"t" msgpack:"t"`
	Cloid      string   `json:"c,omitempty" msgpack:"c,omitempty"`
}

type TypeWire struct {
	Limit   *LimitTypeWire   `json:"limit,omitempty" msgpack:"limit,omitempty"`
	Trigger *TriggerTypeWire `json:"trigger,omitempty" msgpack:"trigger,omitempty"`
}

type LimitTypeWire struct {
	Tif string `json:"tif" msgpack:"tif"`
}

type TriggerTypeWire struct {
	TriggerPx string `json:"triggerPx" msgpack:"triggerPx"`
	IsMarket  bool   `json:"isMarket" msgpack:"isMarket"`
	Tpsl      string `json:"tpsl" msgpack:"tpsl"` // "tp" | "sl"
}

// Group is a set of wires submitted as one atomic action.
type Group struct {
	Grouping Grouping
	Orders   []Wire
}

// NewCloid returns a fresh 16-byte hex client order id, unique per call,
// usable later for idempotent cancel-by-cloid.
func NewCloid() string {
	u := uuid.New()
	return "0x" + hex.EncodeToString(u[:])
}
