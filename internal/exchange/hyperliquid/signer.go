package hyperliquid

import "encoding/json"

// Signature is the secp256k1 signature object actions carry on the wire.
type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V int    `json:"v"`
}

// Signer signs exchange actions. Hyperliquid actions are hashed with
// msgpack+keccak and signed with a secp256k1 wallet or agent key; callers
// supply an implementation holding that key material. A client built
// without a Signer serves market and account data but refuses trading
// operations.
type Signer interface {
	// Address returns the 0x-hex wallet address the signature verifies
	// against.
	Address() string

	// Sign signs the JSON-encoded action for nonce. vault is empty
	// outside vault trading.
	Sign(action json.RawMessage, nonce int64, vault string) (Signature, error)
}
