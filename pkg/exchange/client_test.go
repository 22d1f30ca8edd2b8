package exchange

import (
	"context"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	hlcrypto "github.com/uhyunpark/hyperflow/pkg/crypto"
	"github.com/uhyunpark/hyperflow/pkg/nonce"
	"github.com/uhyunpark/hyperflow/pkg/order"
	"github.com/uhyunpark/hyperflow/pkg/util"
)

// fakePoster records envelopes and replays scripted responses.
type fakePoster struct {
	bodies    [][]byte
	responses []string // popped front to back; last one repeats
}

func (f *fakePoster) PostExchange(_ context.Context, body []byte) ([]byte, error) {
	f.bodies = append(f.bodies, body)
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return []byte(resp), nil
}

func (f *fakePoster) PostInfo(context.Context, []byte) ([]byte, error) {
	return []byte(`{}`), nil
}

const (
	okResponse    = `{"status":"ok","response":{"type":"default"}}`
	nonceResponse = `{"status":"err","response":"Invalid nonce: too old"}`
	authResponse  = `{"status":"err","response":"User or API Wallet does not exist"}`
)

func newTestClient(t *testing.T, poster Poster) *Client {
	t.Helper()
	signer, err := hlcrypto.GenerateKey()
	require.NoError(t, err)
	return NewClient(poster, signer, nonce.NewManager(util.RealClock{}), false, nil, nil)
}

func testGroup(t *testing.T) order.Group {
	t.Helper()
	return order.Group{
		Grouping: order.GroupingNA,
		Orders: []order.Wire{{
			Asset: 0, IsBuy: true, Price: "50000.7", Size: "0.001",
			Type:  order.TypeWire{Limit: &order.LimitTypeWire{Tif: "GTC"}},
			Cloid: order.NewCloid(),
		}},
	}
}

func TestPlaceGroupEnvelopeShape(t *testing.T) {
	poster := &fakePoster{responses: []string{okResponse}}
	c := newTestClient(t, poster)

	_, err := c.PlaceGroup(context.Background(), testGroup(t))
	require.NoError(t, err)
	require.Len(t, poster.bodies, 1)

	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(poster.bodies[0], &env))
	require.Contains(t, env, "action")
	require.Contains(t, env, "nonce")
	require.Contains(t, env, "signature")
	require.Equal(t, "null", string(env["vaultAddress"]))
	require.Equal(t, "null", string(env["expiresAfter"]))

	var sig struct {
		R string `json:"r"`
		S string `json:"s"`
		V uint8  `json:"v"`
	}
	require.NoError(t, json.Unmarshal(env["signature"], &sig))
	require.Len(t, sig.R, 66)
	require.Len(t, sig.S, 66)
	require.True(t, sig.V == 27 || sig.V == 28)

	var action struct {
		Type     string `json:"type"`
		Grouping string `json:"grouping"`
	}
	require.NoError(t, json.Unmarshal(env["action"], &action))
	require.Equal(t, "order", action.Type)
	require.Equal(t, "na", action.Grouping)
}

func TestSubmitRetriesRejectedNonce(t *testing.T) {
	poster := &fakePoster{responses: []string{nonceResponse, nonceResponse, okResponse}}
	c := newTestClient(t, poster)

	resp, err := c.PlaceGroup(context.Background(), testGroup(t))
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Status)
	require.Len(t, poster.bodies, 3)

	// each retry used a fresh, strictly larger nonce
	var prev int64
	for _, body := range poster.bodies {
		var env struct {
			Nonce int64 `json:"nonce"`
		}
		require.NoError(t, json.Unmarshal(body, &env))
		require.Greater(t, env.Nonce, prev)
		prev = env.Nonce
	}
}

func TestSubmitGivesUpAfterBoundedNonceRetries(t *testing.T) {
	poster := &fakePoster{responses: []string{nonceResponse}}
	c := newTestClient(t, poster)

	_, err := c.PlaceGroup(context.Background(), testGroup(t))
	require.ErrorIs(t, err, ErrNonceRejected)
	require.Len(t, poster.bodies, maxNonceRetries)
}

func TestSubmitAuthRejectionIsNotRetried(t *testing.T) {
	poster := &fakePoster{responses: []string{authResponse}}
	c := newTestClient(t, poster)

	_, err := c.PlaceGroup(context.Background(), testGroup(t))
	require.ErrorIs(t, err, ErrAuthRejected)
	require.Len(t, poster.bodies, 1)
}

func TestRestingTracking(t *testing.T) {
	poster := &fakePoster{responses: []string{okResponse}}
	c := newTestClient(t, poster)

	g := testGroup(t)
	_, err := c.PlaceGroup(context.Background(), g)
	require.NoError(t, err)

	refs := c.RestingRefs()
	require.Len(t, refs, 1)
	require.Equal(t, g.Orders[0].Cloid, refs[0].Cloid)

	_, err = c.Cancel(context.Background(), refs)
	require.NoError(t, err)
	require.Empty(t, c.RestingRefs())
}

func TestCancelRejectsMixedRefs(t *testing.T) {
	poster := &fakePoster{responses: []string{okResponse}}
	c := newTestClient(t, poster)

	_, err := c.Cancel(context.Background(), []OrderRef{
		{Asset: 0, Oid: 123},
		{Asset: 0, Cloid: "0xabc"},
	})
	require.Error(t, err)
	require.Empty(t, poster.bodies)
}

func TestScheduleCancelMinimumLead(t *testing.T) {
	poster := &fakePoster{responses: []string{okResponse}}
	c := newTestClient(t, poster)

	_, err := c.ScheduleCancel(context.Background(), 2*time.Second)
	require.Error(t, err)
	require.Empty(t, poster.bodies)

	_, err = c.ScheduleCancel(context.Background(), 30*time.Second)
	require.NoError(t, err)
	require.Len(t, poster.bodies, 1)

	var env struct {
		Action struct {
			Type string `json:"type"`
			Secs int64  `json:"secs"`
		} `json:"action"`
	}
	require.NoError(t, json.Unmarshal(poster.bodies[0], &env))
	require.Equal(t, "scheduleCancel", env.Action.Type)
	require.Equal(t, int64(30), env.Action.Secs)
}
