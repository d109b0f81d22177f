package hyperliquid

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/sha3"
)

// EIP-712 domain for L1 action signatures. The chain id is the venue's
// signing domain, not a real network.
const (
	signDomainName    = "Exchange"
	signDomainVersion = "1"
	signChainID       = 1337

	sourceMainnet = "a"
	sourceTestnet = "b"
)

// WalletSigner signs actions with a secp256k1 key, either the account's
// own wallet or a delegated agent wallet.
type WalletSigner struct {
	key     *secp256k1.PrivateKey
	address string
	source  string
}

// NewWalletSigner creates a signer from a 0x-hex 32-byte private key.
func NewWalletSigner(privHex string, testnet bool) (*WalletSigner, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(privHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(raw) != 32 {
		return nil, errors.New("private key must be 32 bytes")
	}
	key := secp256k1.PrivKeyFromBytes(raw)

	// Ethereum address: last 20 bytes of keccak over the uncompressed
	// public key without its 0x04 prefix.
	pub := key.PubKey().SerializeUncompressed()
	sum := keccak256(pub[1:])

	source := sourceMainnet
	if testnet {
		source = sourceTestnet
	}
	return &WalletSigner{
		key:     key,
		address: "0x" + hex.EncodeToString(sum[12:]),
		source:  source,
	}, nil
}

// Address returns the signing wallet's 0x-hex address.
func (w *WalletSigner) Address() string { return w.address }

// Sign hashes the action into a phantom-agent digest and signs it. The
// hash covers the msgpack encoding of the action, the nonce, and the
// vault address flag, so field order in the JSON must match the wire
// payload exactly.
func (w *WalletSigner) Sign(action json.RawMessage, nonce int64, vault string) (Signature, error) {
	digest, err := w.actionDigest(action, nonce, vault)
	if err != nil {
		return Signature{}, err
	}

	// Compact form is [recovery+27, R, S].
	sig := ecdsa.SignCompact(w.key, digest, false)
	return Signature{
		R: "0x" + hex.EncodeToString(sig[1:33]),
		S: "0x" + hex.EncodeToString(sig[33:65]),
		V: int(sig[0]),
	}, nil
}

// actionDigest builds the EIP-712 digest for one action.
func (w *WalletSigner) actionDigest(action json.RawMessage, nonce int64, vault string) ([]byte, error) {
	packed, err := msgpackFromJSON(action)
	if err != nil {
		return nil, fmt.Errorf("pack action: %w", err)
	}

	buf := bytes.NewBuffer(packed)
	var nb [8]byte
	binary.BigEndian.PutUint64(nb[:], uint64(nonce))
	buf.Write(nb[:])
	if vault == "" {
		buf.WriteByte(0x00)
	} else {
		addr, err := hex.DecodeString(strings.TrimPrefix(vault, "0x"))
		if err != nil || len(addr) != 20 {
			return nil, fmt.Errorf("bad vault address %q", vault)
		}
		buf.WriteByte(0x01)
		buf.Write(addr)
	}
	connectionID := keccak256(buf.Bytes())

	domain := keccak256(concat(
		keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)")),
		keccak256([]byte(signDomainName)),
		keccak256([]byte(signDomainVersion)),
		uint256Bytes(signChainID),
		make([]byte, 32), // zero verifying contract
	))
	agent := keccak256(concat(
		keccak256([]byte("Agent(string source,bytes32 connectionId)")),
		keccak256([]byte(w.source)),
		connectionID,
	))
	return keccak256(concat([]byte{0x19, 0x01}, domain, agent)), nil
}

// msgpackFromJSON transcodes a JSON document to msgpack, preserving the
// object key order the document was written with. The signature hash is
// over these bytes, so order matters.
func msgpackFromJSON(raw json.RawMessage) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	v, err := parseOrdered(dec)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := encodeOrdered(enc, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// member is one object entry in document order.
type member struct {
	key string
	val any
}

func parseOrdered(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			var obj []member
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key %v", keyTok)
				}
				val, err := parseOrdered(dec)
				if err != nil {
					return nil, err
				}
				obj = append(obj, member{key: key, val: val})
			}
			if _, err := dec.Token(); err != nil { // closing brace
				return nil, err
			}
			return obj, nil
		case '[':
			var arr []any
			for dec.More() {
				val, err := parseOrdered(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil { // closing bracket
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	default:
		return tok, nil
	}
}

func encodeOrdered(enc *msgpack.Encoder, v any) error {
	switch t := v.(type) {
	case []member:
		if err := enc.EncodeMapLen(len(t)); err != nil {
			return err
		}
		for _, m := range t {
			if err := enc.EncodeString(m.key); err != nil {
				return err
			}
			if err := encodeOrdered(enc, m.val); err != nil {
				return err
			}
		}
		return nil
	case []any:
		if err := enc.EncodeArrayLen(len(t)); err != nil {
			return err
		}
		for _, e := range t {
			if err := encodeOrdered(enc, e); err != nil {
				return err
			}
		}
		return nil
	case string:
		return enc.EncodeString(t)
	case json.Number:
		if strings.ContainsAny(t.String(), ".eE") {
			f, err := t.Float64()
			if err != nil {
				return err
			}
			return enc.EncodeFloat64(f)
		}
		n, err := t.Int64()
		if err != nil {
			return err
		}
		return enc.EncodeInt(n)
	case bool:
		return enc.EncodeBool(t)
	case nil:
		return enc.EncodeNil()
	default:
		return fmt.Errorf("unsupported value %T", v)
	}
}

func keccak256(chunks ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, c := range chunks {
		h.Write(c)
	}
	return h.Sum(nil)
}

func concat(chunks ...[]byte) []byte {
	var buf bytes.Buffer
	for _, c := range chunks {
		buf.Write(c)
	}
	return buf.Bytes()
}

func uint256Bytes(v uint64) []byte {
	out := make([]byte, 32)
	binary.BigEndian.PutUint64(out[24:], v)
	return out
}
