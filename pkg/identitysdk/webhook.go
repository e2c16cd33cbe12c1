package identitysdk

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the webhook request body.
const SignatureHeader = "X-Webhook-Signature"

// VerifySignature reports whether the signature header matches the body
// bytes under the application's webhook secret. Receivers must pass the body
// exactly as received; re-serializing the JSON breaks the signature.
func VerifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
