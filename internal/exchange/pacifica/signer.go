package pacifica

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mr-tron/base58"
)

// Keypair is an ed25519 agent key authorized to sign for an account.
type Keypair struct {
	priv ed25519.PrivateKey
	pub  string // base58 public key
}

// KeypairFromBase58 builds a keypair from a base58-encoded 64-byte
// ed25519 private key (Solana wallet format).
func KeypairFromBase58(encoded string) (*Keypair, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key is %d bytes, want %d", len(raw), ed25519.PrivateKeySize)
	}
	priv := ed25519.PrivateKey(raw)
	return &Keypair{
		priv: priv,
		pub:  base58.Encode(priv.Public().(ed25519.PublicKey)),
	}, nil
}

// PublicKey returns the base58 public key.
func (k *Keypair) PublicKey() string { return k.pub }

// signOperation signs one trading operation. The signed message is the
// compact JSON of the header fields plus the payload under "data", with
// keys sorted recursively; the venue verifies the same canonical form.
func (k *Keypair) signOperation(opType string, ts int64, payload any) (string, error) {
	data, err := toCanonical(payload)
	if err != nil {
		return "", err
	}
	msg := map[string]any{
		"timestamp":     ts,
		"expiry_window": signatureExpiryMS,
		"type":          opType,
		"data":          data,
	}
	canonical, err := marshalCanonical(msg)
	if err != nil {
		return "", err
	}
	return base58.Encode(ed25519.Sign(k.priv, canonical)), nil
}

// toCanonical round-trips payload through JSON so canonical marshaling
// sees plain maps and slices.
func toCanonical(payload any) (any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return v, nil
}

// marshalCanonical renders v as compact JSON with object keys sorted at
// every depth.
func marshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case json.Number:
		buf.WriteString(t.String())
		return nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}
