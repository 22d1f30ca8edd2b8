// Package exchange assembles signed request envelopes for the exchange's
// /exchange surface and enforces the client-side request budget. Field
// order in action structs is fixed: the msgpack encoding of these types is
// what gets hashed and signed, so it must match the exchange schema
// bit-for-bit.
package exchange

import (
	"github.com/uhyunpark/hyperflow/pkg/order"
)

const (
	ActionTypeOrder          = "order"
	ActionTypeCancel         = "cancel"
	ActionTypeCancelByCloid  = "cancelByCloid"
	ActionTypeScheduleCancel = "scheduleCancel"
)

// OrderRef identifies a resting order by exchange id or client id. Cloid
// wins when both are set.
type OrderRef struct {
	Asset int
	Oid   int64
	Cloid string
}

type OrderAction struct {
	Type     string       `json:"type" msgpack:"type"`
	Orders   []order.Wire `json:"orders" msgpack:"orders"`
	Grouping string       `json:"grouping" msgpack:"grouping"`
}

func NewOrderAction(g order.Group) OrderAction {
	grouping := g.Grouping
	if grouping == "" {
		grouping = order.GroupingNA
	}
	return OrderAction{Type: ActionTypeOrder, Orders: g.Orders, Grouping: string(grouping)}
}

type CancelTarget struct {
	Asset int   `json:"a" msgpack:"a"`
	Oid   int64 `json:"o" msgpack:"o"`
}

type CancelAction struct {
	Type    string         `json:"type" msgpack:"type"`
	Cancels []CancelTarget `json:"cancels" msgpack:"cancels"`
}

type CancelByCloidTarget struct {
	Asset int    `json:"asset" msgpack:"asset"`
	Cloid string `json:"cloid" msgpack:"cloid"`
}

type CancelByCloidAction struct {
	Type    string                `json:"type" msgpack:"type"`
	Cancels []CancelByCloidTarget `json:"cancels" msgpack:"cancels"`
}

// ScheduleCancelAction arms the exchange-side dead-man's-switch: all
// resting orders are cancelled at Secs seconds from now unless rescheduled.
type ScheduleCancelAction struct {
	Type string `json:"type" msgpack:"type"`
	Secs int64  `json:"secs" msgpack:"secs"`
}
