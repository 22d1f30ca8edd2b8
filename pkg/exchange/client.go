package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	hlcrypto "github.com/uhyunpark/hyperflow/pkg/crypto"
	"github.com/uhyunpark/hyperflow/pkg/metrics"
	"github.com/uhyunpark/hyperflow/pkg/nonce"
	"github.com/uhyunpark/hyperflow/pkg/order"
)

var (
	// ErrNonceRejected: the local validator or the exchange refused the
	// nonce. Retried with a fresh nonce up to maxNonceRetries.
	ErrNonceRejected = errors.New("nonce rejected")
	// ErrRateLimited: the exchange throttled the request.
	ErrRateLimited = errors.New("rate limited")
	// ErrAuthRejected: signature or wallet permanently refused. Never
	// retried automatically.
	ErrAuthRejected = errors.New("authentication rejected")
)

const maxNonceRetries = 3

// scheduleCancelMinLead is the exchange's minimum lead time for a
// scheduled cancel.
const scheduleCancelMinLead = 5 * time.Second

// Poster is the raw REST transport collaborator. It does no signing, no
// nonce handling and no rate limiting; those live here.
type Poster interface {
	PostExchange(ctx context.Context, body []byte) ([]byte, error)
	PostInfo(ctx context.Context, body []byte) ([]byte, error)
}

// Response is the exchange's /exchange reply.
type Response struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

// Client signs and submits exchange actions. It tracks resting orders
// placed through it so a cancel-all can be constructed without an extra
// info round-trip.
type Client struct {
	poster    Poster
	signer    *hlcrypto.Signer
	nonces    *nonce.Manager
	isMainnet bool
	vault     *common.Address
	log       *zap.Logger

	mu      sync.Mutex
	resting map[string]OrderRef // keyed by cloid
}

func NewClient(poster Poster, signer *hlcrypto.Signer, nonces *nonce.Manager, isMainnet bool, vault *common.Address, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		poster:    poster,
		signer:    signer,
		nonces:    nonces,
		isMainnet: isMainnet,
		vault:     vault,
		log:       log,
		resting:   make(map[string]OrderRef),
	}
}

// PlaceGroup signs and submits an order group as one atomic action.
func (c *Client) PlaceGroup(ctx context.Context, g order.Group) (Response, error) {
	if len(g.Orders) == 0 {
		return Response{}, fmt.Errorf("empty order group")
	}
	action := NewOrderAction(g)
	resp, err := c.Submit(ctx, action, ActionTypeOrder)
	if err != nil {
		metrics.OrdersTotal.WithLabelValues("error").Inc()
		return resp, err
	}
	metrics.OrdersTotal.WithLabelValues("ok").Inc()

	c.mu.Lock()
	for _, w := range g.Orders {
		if w.Cloid != "" {
			c.resting[w.Cloid] = OrderRef{Asset: w.Asset, Cloid: w.Cloid}
		}
	}
	c.mu.Unlock()
	return resp, nil
}

// Cancel submits one cancel action for the given refs. Refs with a cloid
// and refs with an oid cannot share an action type, so callers split them;
// the batch canceller does this automatically.
func (c *Client) Cancel(ctx context.Context, refs []OrderRef) (Response, error) {
	byOid := make([]CancelTarget, 0, len(refs))
	byCloid := make([]CancelByCloidTarget, 0, len(refs))
	for _, r := range refs {
		if r.Cloid != "" {
			byCloid = append(byCloid, CancelByCloidTarget{Asset: r.Asset, Cloid: r.Cloid})
		} else {
			byOid = append(byOid, CancelTarget{Asset: r.Asset, Oid: r.Oid})
		}
	}
	if len(byOid) > 0 && len(byCloid) > 0 {
		return Response{}, fmt.Errorf("mixed oid/cloid refs in one cancel action")
	}

	var (
		resp Response
		err  error
	)
	if len(byCloid) > 0 {
		resp, err = c.Submit(ctx, CancelByCloidAction{Type: ActionTypeCancelByCloid, Cancels: byCloid}, ActionTypeCancelByCloid)
	} else {
		resp, err = c.Submit(ctx, CancelAction{Type: ActionTypeCancel, Cancels: byOid}, ActionTypeCancel)
	}
	if err != nil {
		return resp, err
	}

	c.mu.Lock()
	for _, r := range refs {
		if r.Cloid != "" {
			delete(c.resting, r.Cloid)
		}
	}
	c.mu.Unlock()
	return resp, nil
}

// ScheduleCancel arms the exchange-side dead-man's-switch leadTime from
// now. The exchange requires at least 5 seconds of lead.
func (c *Client) ScheduleCancel(ctx context.Context, leadTime time.Duration) (Response, error) {
	if leadTime < scheduleCancelMinLead {
		return Response{}, fmt.Errorf("scheduleCancel lead %s below exchange minimum %s", leadTime, scheduleCancelMinLead)
	}
	action := ScheduleCancelAction{Type: ActionTypeScheduleCancel, Secs: int64(leadTime.Seconds())}
	return c.Submit(ctx, action, ActionTypeScheduleCancel)
}

// RestingRefs returns the refs of orders placed through this client that
// have not been cancelled through it.
func (c *Client) RestingRefs() []OrderRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]OrderRef, 0, len(c.resting))
	for _, r := range c.resting {
		out = append(out, r)
	}
	return out
}

// Submit signs an action with a fresh nonce and POSTs it. A nonce the
// exchange rejects is retried with a newly issued nonce a bounded number
// of times; signing failures and auth rejections are returned immediately.
func (c *Client) Submit(ctx context.Context, action any, actionType string) (Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxNonceRetries; attempt++ {
		n := c.nonces.Next()
		if !c.nonces.WithinWindow(n) {
			// only possible under severe clock skew; a fresh nonce
			// cannot help, so abort
			return Response{}, fmt.Errorf("%w: issued nonce %d outside validity window", ErrNonceRejected, n)
		}
		metrics.NoncesIssuedTotal.Inc()

		sig, err := hlcrypto.SignL1Action(c.signer, action, n, c.isMainnet, c.vault, nil)
		if err != nil {
			return Response{}, fmt.Errorf("sign %s action: %w", actionType, err)
		}

		var vaultStr *string
		if c.vault != nil {
			s := c.vault.Hex()
			vaultStr = &s
		}
		env := NewEnvelope(action, actionType, n, sig, vaultStr, nil)
		body, err := json.Marshal(env)
		if err != nil {
			return Response{}, fmt.Errorf("encode envelope: %w", err)
		}

		raw, err := c.poster.PostExchange(ctx, body)
		if err != nil {
			return Response{}, fmt.Errorf("post %s action: %w", actionType, err)
		}

		var resp Response
		if err := json.Unmarshal(raw, &resp); err != nil {
			return Response{}, fmt.Errorf("decode exchange response: %w", err)
		}
		if resp.Status != "err" {
			return resp, nil
		}

		err = classifyExchangeError(string(resp.Response))
		if !errors.Is(err, ErrNonceRejected) {
			return resp, err
		}
		c.log.Warn("exchange rejected nonce, retrying",
			zap.String("action", actionType),
			zap.Int64("nonce", n),
			zap.Int("attempt", attempt+1))
		lastErr = err
	}
	return Response{}, fmt.Errorf("%s action: %w after %d attempts", actionType, lastErr, maxNonceRetries)
}

func classifyExchangeError(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "nonce"):
		return fmt.Errorf("%w: %s", ErrNonceRejected, msg)
	case strings.Contains(lower, "rate limit"):
		return fmt.Errorf("%w: %s", ErrRateLimited, msg)
	case strings.Contains(lower, "signature"), strings.Contains(lower, "wallet"), strings.Contains(lower, "agent"):
		return fmt.Errorf("%w: %s", ErrAuthRejected, msg)
	default:
		return fmt.Errorf("exchange error: %s", msg)
	}
}
