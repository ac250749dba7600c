// Package security signs outbound webhook deliveries.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

const (
	// SignatureHeader is the HTTP header name carrying the request signature.
	SignatureHeader = "X-Webhook-Signature"

	// SignatureAlgorithmHeader is the HTTP header name carrying the signing algorithm.
	SignatureAlgorithmHeader = "X-Webhook-Signature-Algorithm"

	// DefaultAlgorithm is the HMAC algorithm used for signing.
	DefaultAlgorithm = "sha256"
)

// SignPayload generates an HMAC-SHA256 signature for the given payload.
func SignPayload(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
