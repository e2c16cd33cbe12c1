package identitysdk

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	body := []byte(`{"event_type":"authorization_revoked","data":{"token":"abc"}}`)
	secret := "webhook-secret"

	require.True(t, VerifySignature(secret, body, sign(secret, body)))

	t.Run("different body fails", func(t *testing.T) {
		require.False(t, VerifySignature(secret, []byte(`{"event_type":"other"}`), sign(secret, body)))
	})

	t.Run("whitespace changes fail", func(t *testing.T) {
		reserialized := []byte(`{"event_type": "authorization_revoked", "data": {"token": "abc"}}`)
		require.False(t, VerifySignature(secret, reserialized, sign(secret, body)))
	})

	t.Run("different secret fails", func(t *testing.T) {
		require.False(t, VerifySignature("other-secret", body, sign(secret, body)))
	})

	t.Run("garbage signature fails", func(t *testing.T) {
		require.False(t, VerifySignature(secret, body, "not-base64!"))
		require.False(t, VerifySignature(secret, body, ""))
	})
}
