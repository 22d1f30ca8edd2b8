package exchange

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// HTTPPoster is the production REST transport: plain JSON POSTs against
// the exchange's /info and /exchange surfaces.
type HTTPPoster struct {
	baseURL string
	hc      *http.Client
}

func NewHTTPPoster(baseURL string) *HTTPPoster {
	return &HTTPPoster{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *HTTPPoster) PostExchange(ctx context.Context, body []byte) ([]byte, error) {
	return p.post(ctx, "/exchange", body)
}

func (p *HTTPPoster) PostInfo(ctx context.Context, body []byte) ([]byte, error) {
	return p.post(ctx, "/info", body)
}

// MetaAndAssetCtxs implements meta.InfoSource.
func (p *HTTPPoster) MetaAndAssetCtxs(ctx context.Context) ([]byte, error) {
	body, err := json.Marshal(map[string]string{"type": "metaAndAssetCtxs"})
	if err != nil {
		return nil, err
	}
	return p.PostInfo(ctx, body)
}

func (p *HTTPPoster) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("post %s: status %d: %s", path, resp.StatusCode, raw)
	}
	return raw, nil
}
