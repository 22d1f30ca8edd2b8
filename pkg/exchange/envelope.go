package exchange

import (
	hlcrypto "github.com/uhyunpark/hyperflow/pkg/crypto"
)

// Envelope is the wire shape POSTed to /exchange. It is immutable and
// single-use: the nonce inside bounds its validity.
type Envelope struct {
	Action       any                `json:"action"`
	Nonce        int64              `json:"nonce"`
	Signature    hlcrypto.Signature `json:"signature"`
	VaultAddress *string            `json:"vaultAddress"`
	ExpiresAfter *int64             `json:"expiresAfter"`
}

// NewEnvelope assembles the payload. vaultAddress is forced to null for
// the action types the exchange signs against the user wallet directly.
func NewEnvelope(action any, actionType string, nonce int64, sig hlcrypto.Signature, vaultAddress *string, expiresAfter *int64) Envelope {
	switch actionType {
	case "usdClassTransfer", "sendAsset":
		vaultAddress = nil
	}
	return Envelope{
		Action:       action,
		Nonce:        nonce,
		Signature:    sig,
		VaultAddress: vaultAddress,
		ExpiresAfter: expiresAfter,
	}
}
