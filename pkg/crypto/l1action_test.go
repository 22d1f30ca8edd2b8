package crypto

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

type testAction struct {
	Type     string   `msgpack:"type"`
	Grouping string   `msgpack:"grouping"`
	Values   []string `msgpack:"values"`
}

func TestActionHashDeterministic(t *testing.T) {
	action := testAction{Type: "order", Grouping: "na", Values: []string{"a", "b"}}

	h1, err := ActionHash(action, nil, 1_700_000_000_000, nil)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	h2, err := ActionHash(action, nil, 1_700_000_000_000, nil)
	if err != nil {
		t.Fatalf("second hash failed: %v", err)
	}
	if !bytes.Equal(h1, h2) {
		t.Error("identical actions hashed differently")
	}
	if len(h1) != 32 {
		t.Errorf("hash length = %d, want 32", len(h1))
	}
}

func TestActionHashBindsNonceVaultExpiry(t *testing.T) {
	action := testAction{Type: "order"}
	base, _ := ActionHash(action, nil, 1000, nil)

	differentNonce, _ := ActionHash(action, nil, 1001, nil)
	if bytes.Equal(base, differentNonce) {
		t.Error("nonce not bound into hash")
	}

	vault := common.HexToAddress("0x1111111111111111111111111111111111111111")
	withVault, _ := ActionHash(action, &vault, 1000, nil)
	if bytes.Equal(base, withVault) {
		t.Error("vault address not bound into hash")
	}

	exp := int64(5000)
	withExpiry, _ := ActionHash(action, nil, 1000, &exp)
	if bytes.Equal(base, withExpiry) {
		t.Error("expiry not bound into hash")
	}
}

func TestActionHashRejectsUnencodable(t *testing.T) {
	if _, err := ActionHash(func() {}, nil, 1000, nil); err == nil {
		t.Error("expected error for non-encodable action")
	}
}

func TestSignL1ActionDeterministic(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	action := testAction{Type: "order", Grouping: "na"}

	sig1, err := SignL1Action(signer, action, 1_700_000_000_000, true, nil, nil)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	sig2, err := SignL1Action(signer, action, 1_700_000_000_000, true, nil, nil)
	if err != nil {
		t.Fatalf("second sign failed: %v", err)
	}
	if sig1 != sig2 {
		t.Errorf("signatures differ: %+v vs %+v", sig1, sig2)
	}
	if sig1.V != 27 && sig1.V != 28 {
		t.Errorf("v = %d, want 27 or 28", sig1.V)
	}
}

func TestSignL1ActionNetworkChangesSignature(t *testing.T) {
	signer, _ := GenerateKey()
	action := testAction{Type: "order"}

	mainnet, err := SignL1Action(signer, action, 1000, true, nil, nil)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	testnet, err := SignL1Action(signer, action, 1000, false, nil, nil)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if mainnet == testnet {
		t.Error("mainnet and testnet signatures should differ (phantom agent source)")
	}
}

func TestSignL1ActionRecoverRoundTrip(t *testing.T) {
	signer, _ := GenerateKey()
	action := testAction{Type: "cancel", Values: []string{"1", "2"}}

	sig, err := SignL1Action(signer, action, 42, false, nil, nil)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	recovered, err := RecoverL1ActionSigner(action, 42, false, nil, nil, sig)
	if err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	if recovered != signer.Address() {
		t.Errorf("recovered %s, want %s", recovered.Hex(), signer.Address().Hex())
	}
}
