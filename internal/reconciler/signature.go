package reconciler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// ComputeSignature returns the hex HMAC-SHA256 of timestamp+body using
// the webhook signing key.
func ComputeSignature(key []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook signature in constant time. Batches
// failing verification must be rejected before any event is processed.
func VerifySignature(key []byte, timestamp string, body []byte, signature string) bool {
	expected := ComputeSignature(key, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
