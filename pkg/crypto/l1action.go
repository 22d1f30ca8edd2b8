package crypto

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/vmihailenco/msgpack/v5"
)

// Signature is the r/s/v triple the exchange expects in a signed envelope.
type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V uint8  `json:"v"`
}

// The L1 action domain is fixed by the exchange: the chain id is a
// constant, the network is selected by the phantom agent source instead.
var l1Domain = apitypes.TypedDataDomain{
	Name:              "Exchange",
	Version:           "1",
	ChainId:           (*math.HexOrDecimal256)(big.NewInt(1337)),
	VerifyingContract: common.Address{}.Hex(),
}

// ActionHash computes the canonical digest of an exchange action:
// msgpack(action) || nonce (8 bytes BE) || vault marker || optional
// expiry marker, hashed with keccak256. The action must be a struct whose
// msgpack field order matches the exchange schema; a non-encodable action
// is a signing error, never silently coerced.
func ActionHash(action any, vault *common.Address, nonce int64, expiresAfter *int64) ([]byte, error) {
	data, err := msgpack.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("encode action: %w", err)
	}

	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], uint64(nonce))
	data = append(data, nonceBytes[:]...)

	if vault == nil {
		data = append(data, 0x00)
	} else {
		data = append(data, 0x01)
		data = append(data, vault.Bytes()...)
	}

	if expiresAfter != nil {
		var expBytes [8]byte
		binary.BigEndian.PutUint64(expBytes[:], uint64(*expiresAfter))
		data = append(data, 0x00)
		data = append(data, expBytes[:]...)
	}

	return crypto.Keccak256(data), nil
}

// SignL1Action signs an exchange action with the key held by s. The action
// hash is wrapped in a "phantom agent" (source "a" on mainnet, "b" on
// testnet) and signed as EIP-712 typed data of primary type Agent.
// Identical (action, nonce, key) inputs always produce identical
// signatures.
func SignL1Action(s *Signer, action any, nonce int64, isMainnet bool, vault *common.Address, expiresAfter *int64) (Signature, error) {
	hash, err := ActionHash(action, vault, nonce, expiresAfter)
	if err != nil {
		return Signature{}, err
	}
	return signPhantomAgent(s, hash, isMainnet)
}

func signPhantomAgent(s *Signer, actionHash []byte, isMainnet bool) (Signature, error) {
	source := "b"
	if isMainnet {
		source = "a"
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Agent": []apitypes.Type{
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
		},
		PrimaryType: "Agent",
		Domain:      l1Domain,
		Message: apitypes.TypedDataMessage{
			"source":       source,
			"connectionId": hexutil.Encode(actionHash),
		},
	}

	digest, err := typedDataDigest(typedData)
	if err != nil {
		return Signature{}, err
	}

	sig, err := s.Sign(digest)
	if err != nil {
		return Signature{}, fmt.Errorf("sign agent digest: %w", err)
	}

	return Signature{
		R: hexutil.Encode(sig[:32]),
		S: hexutil.Encode(sig[32:64]),
		V: sig[64] + 27,
	}, nil
}

// typedDataDigest computes keccak256("\x19\x01" || domainSeparator ||
// hashStruct(message)).
func typedDataDigest(typedData apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	raw := make([]byte, 0, 2+len(domainSeparator)+len(messageHash))
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator...)
	raw = append(raw, messageHash...)
	return crypto.Keccak256(raw), nil
}

// RecoverL1ActionSigner recovers the address that signed an action.
// Used by tests and tooling to verify envelopes offline.
func RecoverL1ActionSigner(action any, nonce int64, isMainnet bool, vault *common.Address, expiresAfter *int64, sig Signature) (common.Address, error) {
	hash, err := ActionHash(action, vault, nonce, expiresAfter)
	if err != nil {
		return common.Address{}, err
	}

	source := "b"
	if isMainnet {
		source = "a"
	}
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Agent": []apitypes.Type{
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
		},
		PrimaryType: "Agent",
		Domain:      l1Domain,
		Message: apitypes.TypedDataMessage{
			"source":       source,
			"connectionId": hexutil.Encode(hash),
		},
	}
	digest, err := typedDataDigest(typedData)
	if err != nil {
		return common.Address{}, err
	}

	r, err := hexutil.Decode(sig.R)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode r: %w", err)
	}
	sBytes, err := hexutil.Decode(sig.S)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode s: %w", err)
	}

	raw := make([]byte, 65)
	copy(raw[32-len(r):32], r)
	copy(raw[64-len(sBytes):64], sBytes)
	raw[64] = sig.V - 27

	return RecoverAddress(digest, raw)
}
