package backpack

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Keypair is the ed25519 API signing key. The secret is the base64
// encoding of the 32-byte seed.
type Keypair struct {
	priv ed25519.PrivateKey
	pub  string // base64 verifying key
}

// KeypairFromBase64 builds a keypair from a base64-encoded ed25519 seed.
func KeypairFromBase64(encoded string) (*Keypair, error) {
	seed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("secret key is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Keypair{
		priv: priv,
		pub:  base64.StdEncoding.EncodeToString(priv.Public().(ed25519.PublicKey)),
	}, nil
}

// VerifyingKey returns the base64 public key.
func (k *Keypair) VerifyingKey() string { return k.pub }

// sign returns the base64 signature over the instruction string.
func (k *Keypair) sign(instruction string) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(k.priv, []byte(instruction)))
}

// signingString assembles the canonical instruction form the venue
// verifies: the instruction name, the request parameters sorted by key,
// then timestamp and window. Booleans render lowercase.
func signingString(instruction string, params map[string]string, timestamp, window string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("instruction=")
	sb.WriteString(instruction)
	for _, k := range keys {
		sb.WriteByte('&')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params[k])
	}
	sb.WriteString("&timestamp=")
	sb.WriteString(timestamp)
	sb.WriteString("&window=")
	sb.WriteString(window)
	return sb.String()
}

// instructionFor maps a REST method and path to the venue's instruction
// name. Unsigned public endpoints map to the empty string.
func instructionFor(method, path string) string {
	switch method + " " + path {
	case "GET /capital":
		return "balanceQuery"
	case "GET /capital/collateral":
		return "collateralQuery"
	case "GET /position":
		return "positionQuery"
	case "GET /orders":
		return "orderQueryAll"
	case "POST /order":
		return "orderExecute"
	case "DELETE /order":
		return "orderCancel"
	case "DELETE /orders":
		return "orderCancelAll"
	}
	return ""
}

// headerFunc returns the request signer installed on the REST client. It
// derives the instruction from the route, folds query or body parameters
// into the signing string, and attaches the venue's auth headers.
func (k *Keypair) headerFunc(apiKey, basePath string) func(*http.Request, []byte) error {
	return func(req *http.Request, body []byte) error {
		path := strings.TrimPrefix(req.URL.Path, basePath)
		instruction := instructionFor(req.Method, path)
		if instruction == "" {
			return nil
		}

		params := make(map[string]string)
		for key, vals := range req.URL.Query() {
			if len(vals) > 0 {
				params[key] = vals[0]
			}
		}
		if len(body) > 0 {
			if err := flattenBody(body, params); err != nil {
				return fmt.Errorf("sign request body: %w", err)
			}
		}

		ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
		sig := k.sign(signingString(instruction, params, ts, signatureWindow))

		req.Header.Set("X-API-KEY", apiKey)
		req.Header.Set("X-SIGNATURE", sig)
		req.Header.Set("X-TIMESTAMP", ts)
		req.Header.Set("X-WINDOW", signatureWindow)
		return nil
	}
}

// flattenBody folds the top-level fields of a JSON body into params,
// rendering values the way the venue's verifier does.
func flattenBody(body []byte, params map[string]string) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("trailing data after body object")
	}
	for key, v := range fields {
		switch t := v.(type) {
		case string:
			params[key] = t
		case json.Number:
			params[key] = t.String()
		case bool:
			params[key] = strconv.FormatBool(t)
		default:
			return fmt.Errorf("unsupported field type for %q", key)
		}
	}
	return nil
}

// subscribeSignature builds the signature array for a private stream
// subscription.
func (k *Keypair) subscribeSignature() []string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sig := k.sign(signingString("subscribe", nil, ts, signatureWindow))
	return []string{k.pub, sig, ts, signatureWindow}
}
