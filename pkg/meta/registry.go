// Package meta resolves per-asset precision data (asset id, size decimals,
// tick size, reference prices) from the exchange's metaAndAssetCtxs surface.
// The registry is read-only reference data, refreshed out-of-band.
package meta

import (
	"context"
	"fmt"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// perp prices carry at most 6 decimal places; an asset's tick is derived
// from this when the metadata does not state pxDecimals explicitly.
const maxPxDecimals = 6

// Asset is the precision spec for one symbol.
type Asset struct {
	Symbol     string
	AssetID    int
	SzDecimals int32
	TickSize   decimal.Decimal
	MidPx      decimal.Decimal // zero when the context block was absent
	OraclePx   decimal.Decimal
}

// InfoSource supplies the raw metaAndAssetCtxs response.
type InfoSource interface {
	MetaAndAssetCtxs(ctx context.Context) ([]byte, error)
}

// Registry indexes Asset by upper-cased symbol.
type Registry struct {
	src InfoSource

	mu    sync.RWMutex
	index map[string]Asset
}

func NewRegistry(src InfoSource) *Registry {
	return &Registry{src: src, index: make(map[string]Asset)}
}

type universeEntry struct {
	Name       string `json:"name"`
	SzDecimals int32  `json:"szDecimals"`
	PxDecimals *int32 `json:"pxDecimals"`
	ID         *int   `json:"id"`
}

type assetCtx struct {
	MidPx    decimal.Decimal `json:"midPx"`
	OraclePx decimal.Decimal `json:"oraclePx"`
}

// Refresh fetches metadata and rebuilds the index. The response is either
// {"universe": [...]} or a two-element array [meta, assetCtxs] where the
// context list aligns with the universe by index.
func (r *Registry) Refresh(ctx context.Context) error {
	raw, err := r.src.MetaAndAssetCtxs(ctx)
	if err != nil {
		return fmt.Errorf("fetch metaAndAssetCtxs: %w", err)
	}
	index, err := parse(raw)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.index = index
	r.mu.Unlock()
	return nil
}

func parse(raw []byte) (map[string]Asset, error) {
	var universe []universeEntry
	var ctxs []assetCtx

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var blocks []json.RawMessage
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return nil, fmt.Errorf("decode metaAndAssetCtxs: %w", err)
		}
		for _, b := range blocks {
			var obj struct {
				Universe []universeEntry `json:"universe"`
			}
			if err := json.Unmarshal(b, &obj); err == nil && len(obj.Universe) > 0 {
				universe = obj.Universe
				continue
			}
			var cs []assetCtx
			if err := json.Unmarshal(b, &cs); err == nil && len(cs) > 0 {
				ctxs = cs
			}
		}
	} else {
		var obj struct {
			Universe  []universeEntry `json:"universe"`
			AssetCtxs []assetCtx      `json:"assetCtxs"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("decode metaAndAssetCtxs: %w", err)
		}
		universe = obj.Universe
		ctxs = obj.AssetCtxs
	}

	if len(universe) == 0 {
		return nil, fmt.Errorf("metaAndAssetCtxs response had no universe block")
	}

	index := make(map[string]Asset, len(universe))
	for i, entry := range universe {
		if entry.Name == "" {
			continue
		}
		id := i
		if entry.ID != nil {
			id = *entry.ID
		}
		pxDec := maxPxDecimals - entry.SzDecimals
		if entry.PxDecimals != nil {
			pxDec = *entry.PxDecimals
		}
		a := Asset{
			Symbol:     strings.ToUpper(entry.Name),
			AssetID:    id,
			SzDecimals: entry.SzDecimals,
			TickSize:   decimal.New(1, -pxDec),
		}
		if i < len(ctxs) {
			a.MidPx = ctxs[i].MidPx
			a.OraclePx = ctxs[i].OraclePx
		}
		index[a.Symbol] = a
	}
	return index, nil
}

// Get returns the asset for symbol, refreshing once if the index is empty.
func (r *Registry) Get(ctx context.Context, symbol string) (Asset, bool, error) {
	r.mu.RLock()
	empty := len(r.index) == 0
	r.mu.RUnlock()

	if empty {
		if err := r.Refresh(ctx); err != nil {
			return Asset{}, false, err
		}
	}

	r.mu.RLock()
	a, ok := r.index[strings.ToUpper(symbol)]
	r.mu.RUnlock()
	return a, ok, nil
}

// Require is Get with a hard error for unknown symbols.
func (r *Registry) Require(ctx context.Context, symbol string) (Asset, error) {
	a, ok, err := r.Get(ctx, symbol)
	if err != nil {
		return Asset{}, err
	}
	if !ok {
		return Asset{}, fmt.Errorf("asset metadata not found: %s", symbol)
	}
	return a, nil
}
