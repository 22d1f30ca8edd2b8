package order

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hyperflow/params"
	"github.com/uhyunpark/hyperflow/pkg/meta"
)

var minNotional = decimal.RequireFromString(params.MinOrderNotional)

// Build converts an intent into a single order wire.
//
// Rounding rules:
//   - limit buys round the price down, limit sells round up, so a rounded
//     order never crosses worse than requested
//   - market intents round to the nearest tick (half-to-even); they are
//     emitted as IOC limit orders at the rounded reference price
//   - size always rounds down to the asset's szDecimals, never up
//
// The rounded notional (price x size) must meet the exchange's $10 floor;
// a value exactly at the floor is accepted.
func Build(intent Intent, asset meta.Asset) (Wire, error) {
	if err := checkPrecision(asset); err != nil {
		return Wire{}, err
	}

	px, err := resolvePrice(intent, asset)
	if err != nil {
		return Wire{}, err
	}

	var tif TimeInForce
	switch intent.Type {
	case Market:
		// Market orders execute as aggressive IOC limit orders.
		tif = IOC
		if intent.TIF != "" && intent.TIF != IOC {
			return Wire{}, fmt.Errorf("%w: %q on market order", ErrInvalidTimeInForce, intent.TIF)
		}
		px = roundNearest(px, asset.TickSize)
	case Limit, "":
		tif = intent.TIF
		if tif != GTC && tif != IOC && tif != ALO {
			return Wire{}, fmt.Errorf("%w: %q", ErrInvalidTimeInForce, intent.TIF)
		}
		px = roundDirectional(px, asset.TickSize, intent.IsBuy)
	default:
		return Wire{}, fmt.Errorf("unsupported order type %q", intent.Type)
	}

	sz := roundSize(intent.Size, asset.SzDecimals)
	if err := checkNotional(px, sz); err != nil {
		return Wire{}, err
	}

	cloid := intent.Cloid
	if cloid == "" {
		cloid = NewCloid()
	}

	return Wire{
		Asset:      asset.AssetID,
		IsBuy:      intent.IsBuy,
		Price:      wireNum(px),
		Size:       wireNum(sz),
		ReduceOnly: intent.ReduceOnly,
		Type:       TypeWire{Limit: &LimitTypeWire{Tif: string(tif)}},
		Cloid:      cloid,
	}, nil
}

// BuildTPSL emits the take-profit and stop-loss legs protecting a position,
// grouped as positionTpsl so the exchange treats them atomically. Both legs
// are reduce-only trigger orders on the side opposite the position; each is
// rounded and notional-checked independently.
func BuildTPSL(intent Intent, asset meta.Asset) (Group, error) {
	if err := checkPrecision(asset); err != nil {
		return Group{}, err
	}
	if intent.TakeProfitPx.IsZero() && intent.StopLossPx.IsZero() {
		return Group{}, fmt.Errorf("%w: TP/SL intent has no trigger price", ErrMissingPrice)
	}
	if intent.LimitPx.IsZero() {
		return Group{}, fmt.Errorf("%w: TP/SL legs need a limit price", ErrMissingPrice)
	}

	legIsBuy := !intent.IsBuy // closing side
	limitPx := roundDirectional(intent.LimitPx, asset.TickSize, legIsBuy)
	sz := roundSize(intent.Size, asset.SzDecimals)
	if err := checkNotional(limitPx, sz); err != nil {
		return Group{}, err
	}

	leg := func(triggerPx decimal.Decimal, tpsl string) Wire {
		return Wire{
			Asset:      asset.AssetID,
			IsBuy:      legIsBuy,
			Price:      wireNum(limitPx),
			Size:       wireNum(sz),
			ReduceOnly: true,
			Type: TypeWire{Trigger: &TriggerTypeWire{
				TriggerPx: wireNum(roundNearest(triggerPx, asset.TickSize)),
				IsMarket:  true,
				Tpsl:      tpsl,
			}},
			Cloid: NewCloid(),
		}
	}

	g := Group{Grouping: GroupingPositionTpsl}
	if !intent.TakeProfitPx.IsZero() {
		g.Orders = append(g.Orders, leg(intent.TakeProfitPx, "tp"))
	}
	if !intent.StopLossPx.IsZero() {
		g.Orders = append(g.Orders, leg(intent.StopLossPx, "sl"))
	}
	return g, nil
}

func checkPrecision(asset meta.Asset) error {
	if asset.TickSize.Sign() <= 0 {
		return fmt.Errorf("%w: tick size %s", ErrInvalidPrecision, asset.TickSize)
	}
	if asset.SzDecimals < 0 {
		return fmt.Errorf("%w: szDecimals %d", ErrInvalidPrecision, asset.SzDecimals)
	}
	return nil
}

func resolvePrice(intent Intent, asset meta.Asset) (decimal.Decimal, error) {
	if !intent.LimitPx.IsZero() {
		return intent.LimitPx, nil
	}
	if intent.Type == Market && !asset.MidPx.IsZero() {
		return asset.MidPx, nil
	}
	return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrMissingPrice, intent.Symbol)
}

func checkNotional(px, sz decimal.Decimal) error {
	notional := px.Mul(sz)
	if notional.Cmp(minNotional) < 0 {
		return fmt.Errorf("%w: %s < %s", ErrInsufficientNotional, notional, minNotional)
	}
	return nil
}

func roundDirectional(px, tick decimal.Decimal, isBuy bool) decimal.Decimal {
	steps := px.Div(tick)
	if isBuy {
		steps = steps.Floor()
	} else {
		steps = steps.Ceil()
	}
	return steps.Mul(tick)
}

func roundNearest(px, tick decimal.Decimal) decimal.Decimal {
	return px.Div(tick).RoundBank(0).Mul(tick)
}

func roundSize(sz decimal.Decimal, szDecimals int32) decimal.Decimal {
	return sz.Truncate(szDecimals)
}

// wireNum renders a decimal in the exchange's canonical wire form: no
// trailing zeros, no trailing decimal point. The signed action and the JSON
// body must agree byte-for-byte, so formatting is centralized here.
func wireNum(d decimal.Decimal) string {
	s := d.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}
