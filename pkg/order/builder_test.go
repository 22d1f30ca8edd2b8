package order

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperflow/pkg/meta"
)

func btcAsset() meta.Asset {
	return meta.Asset{
		Symbol:     "BTC",
		AssetID:    0,
		SzDecimals: 3,
		TickSize:   decimal.RequireFromString("0.1"),
		MidPx:      decimal.RequireFromString("50000.0"),
	}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBuildAcceptsAlignedLimitBuy(t *testing.T) {
	w, err := Build(Intent{
		Symbol:  "BTC",
		IsBuy:   true,
		Size:    d("0.0013"),
		LimitPx: d("50000.7"),
		Type:    Limit,
		TIF:     GTC,
	}, btcAsset())
	require.NoError(t, err)

	// 50000.7 is already on the 0.1 tick; size floors to 0.001; notional
	// 50.0007 clears the $10 floor.
	require.Equal(t, "50000.7", w.Price)
	require.Equal(t, "0.001", w.Size)
	require.Equal(t, 0, w.Asset)
	require.True(t, w.IsBuy)
	require.NotNil(t, w.Type.Limit)
	require.Equal(t, "GTC", w.Type.Limit.Tif)
	require.True(t, strings.HasPrefix(w.Cloid, "0x"))
}

func TestBuildDirectionalPriceRounding(t *testing.T) {
	asset := btcAsset()

	buy, err := Build(Intent{IsBuy: true, Size: d("0.01"), LimitPx: d("50000.77"), Type: Limit, TIF: GTC}, asset)
	require.NoError(t, err)
	require.Equal(t, "50000.7", buy.Price, "limit buy rounds down")

	sell, err := Build(Intent{IsBuy: false, Size: d("0.01"), LimitPx: d("50000.71"), Type: Limit, TIF: GTC}, asset)
	require.NoError(t, err)
	require.Equal(t, "50000.8", sell.Price, "limit sell rounds up")
}

func TestBuildPriceIsTickMultiple(t *testing.T) {
	asset := btcAsset()
	for _, raw := range []string{"49999.999", "50000.05", "50123.41", "51000.111111"} {
		for _, isBuy := range []bool{true, false} {
			w, err := Build(Intent{IsBuy: isBuy, Size: d("0.01"), LimitPx: d(raw), Type: Limit, TIF: GTC}, asset)
			require.NoError(t, err)
			rem := d(w.Price).Mod(asset.TickSize)
			require.True(t, rem.IsZero(), "price %s not a multiple of %s", w.Price, asset.TickSize)
		}
	}
}

func TestBuildSizeNeverRoundsUp(t *testing.T) {
	asset := btcAsset()
	for _, raw := range []string{"0.0019", "0.0011", "0.001999", "1.23456"} {
		w, err := Build(Intent{IsBuy: true, Size: d(raw), LimitPx: d("50000"), Type: Limit, TIF: GTC}, asset)
		require.NoError(t, err)
		got := d(w.Size)
		require.True(t, got.LessThanOrEqual(d(raw)), "size %s > input %s", w.Size, raw)
		require.True(t, got.Exponent() >= -asset.SzDecimals, "size %s exceeds lot precision", w.Size)
	}
}

func TestBuildNotionalFloor(t *testing.T) {
	asset := btcAsset()

	// 0.0001 * 50000 = 5 < 10
	_, err := Build(Intent{IsBuy: true, Size: d("0.0001"), LimitPx: d("50000"), Type: Limit, TIF: GTC}, asset)
	require.ErrorIs(t, err, ErrInsufficientNotional)

	// exactly at the floor: 0.0002 * 50000 = 10
	_, err = Build(Intent{IsBuy: true, Size: d("0.0002"), LimitPx: d("50000"), Type: Limit, TIF: GTC}, asset)
	require.NoError(t, err)
}

func TestBuildRejectsUnknownTIF(t *testing.T) {
	_, err := Build(Intent{IsBuy: true, Size: d("0.01"), LimitPx: d("50000"), Type: Limit, TIF: "FOK"}, btcAsset())
	require.ErrorIs(t, err, ErrInvalidTimeInForce)

	_, err = Build(Intent{IsBuy: true, Size: d("0.01"), LimitPx: d("50000"), Type: Limit}, btcAsset())
	require.ErrorIs(t, err, ErrInvalidTimeInForce, "empty TIF is never silently defaulted")
}

func TestBuildRejectsBadPrecision(t *testing.T) {
	asset := btcAsset()
	asset.TickSize = decimal.Zero
	_, err := Build(Intent{IsBuy: true, Size: d("0.01"), LimitPx: d("50000"), Type: Limit, TIF: GTC}, asset)
	require.ErrorIs(t, err, ErrInvalidPrecision)
}

func TestBuildMarketUsesMidAndIOC(t *testing.T) {
	asset := btcAsset()
	asset.MidPx = d("50000.75")

	w, err := Build(Intent{IsBuy: true, Size: d("0.01"), Type: Market}, asset)
	require.NoError(t, err)
	require.Equal(t, "IOC", w.Type.Limit.Tif)
	// nearest tick, half-to-even: 50000.75 / 0.1 = 500007.5 -> 500008
	require.Equal(t, "50000.8", w.Price)

	asset.MidPx = decimal.Zero
	_, err = Build(Intent{IsBuy: true, Size: d("0.01"), Type: Market}, asset)
	require.ErrorIs(t, err, ErrMissingPrice)
}

func TestBuildMarketRejectsRestingTIF(t *testing.T) {
	_, err := Build(Intent{IsBuy: true, Size: d("0.01"), Type: Market, TIF: GTC}, btcAsset())
	require.ErrorIs(t, err, ErrInvalidTimeInForce)
}

func TestBuildTPSLGroupsTwoLegs(t *testing.T) {
	// long position entered at 50000, tp=50500, sl=49500
	g, err := BuildTPSL(Intent{
		Symbol:       "BTC",
		IsBuy:        true, // position is long
		Size:         d("0.001"),
		LimitPx:      d("50000"),
		TakeProfitPx: d("50500"),
		StopLossPx:   d("49500"),
	}, btcAsset())
	require.NoError(t, err)

	require.Equal(t, GroupingPositionTpsl, g.Grouping)
	require.Len(t, g.Orders, 2)

	tp, sl := g.Orders[0], g.Orders[1]
	require.NotNil(t, tp.Type.Trigger)
	require.NotNil(t, sl.Type.Trigger)
	require.Equal(t, "tp", tp.Type.Trigger.Tpsl)
	require.Equal(t, "sl", sl.Type.Trigger.Tpsl)
	require.Equal(t, "50500", tp.Type.Trigger.TriggerPx)
	require.Equal(t, "49500", sl.Type.Trigger.TriggerPx)

	for _, leg := range g.Orders {
		require.False(t, leg.IsBuy, "legs close a long position")
		require.True(t, leg.ReduceOnly)
		require.True(t, d(leg.Price).Mod(d("0.1")).IsZero())
		require.True(t, d(leg.Size).Mul(d(leg.Price)).GreaterThanOrEqual(d("10")))
	}
	require.NotEqual(t, tp.Cloid, sl.Cloid)
}

func TestBuildTPSLSingleLeg(t *testing.T) {
	g, err := BuildTPSL(Intent{
		IsBuy:      false, // short position: legs are buys
		Size:       d("0.001"),
		LimitPx:    d("50000"),
		StopLossPx: d("50500"),
	}, btcAsset())
	require.NoError(t, err)
	require.Len(t, g.Orders, 1)
	require.True(t, g.Orders[0].IsBuy)
}

func TestBuildTPSLRequiresTriggerAndLimit(t *testing.T) {
	_, err := BuildTPSL(Intent{IsBuy: true, Size: d("0.001"), LimitPx: d("50000")}, btcAsset())
	require.ErrorIs(t, err, ErrMissingPrice)

	_, err = BuildTPSL(Intent{IsBuy: true, Size: d("0.001"), TakeProfitPx: d("50500")}, btcAsset())
	require.ErrorIs(t, err, ErrMissingPrice)
}

func TestBuildTPSLNotionalPerLeg(t *testing.T) {
	_, err := BuildTPSL(Intent{
		IsBuy:        true,
		Size:         d("0.0001"),
		LimitPx:      d("50000"),
		TakeProfitPx: d("50500"),
	}, btcAsset())
	require.ErrorIs(t, err, ErrInsufficientNotional)
}

func TestNewCloidUnique(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		c := NewCloid()
		require.Len(t, c, 34) // 0x + 32 hex chars
		_, dup := seen[c]
		require.False(t, dup)
		seen[c] = struct{}{}
	}
}

func TestBuildKeepsExplicitCloid(t *testing.T) {
	w, err := Build(Intent{IsBuy: true, Size: d("0.01"), LimitPx: d("50000"), Type: Limit, TIF: ALO, Cloid: "0xabc"}, btcAsset())
	require.NoError(t, err)
	require.Equal(t, "0xabc", w.Cloid)
}

func TestErrorsAreSentinels(t *testing.T) {
	_, err := Build(Intent{IsBuy: true, Size: d("0.0001"), LimitPx: d("50000"), Type: Limit, TIF: GTC}, btcAsset())
	require.True(t, errors.Is(err, ErrInsufficientNotional))
}
