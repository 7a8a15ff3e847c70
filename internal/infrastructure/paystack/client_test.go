package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kitabu/billing-api/pkg/config"
)

func sign(key string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	c := NewClient(config.PaystackConfig{SecretKey: "sk_test_secret"})
	body := []byte(`{"event":"charge.success","data":{"reference":"PSK-abc"}}`)

	t.Run("valid signature accepted", func(t *testing.T) {
		assert.True(t, c.VerifySignature(body, sign("sk_test_secret", body)))
	})

	t.Run("tampered body rejected", func(t *testing.T) {
		good := sign("sk_test_secret", body)
		tampered := []byte(`{"event":"charge.success","data":{"reference":"PSK-xyz"}}`)
		assert.False(t, c.VerifySignature(tampered, good))
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		assert.False(t, c.VerifySignature(body, sign("sk_other", body)))
	})

	t.Run("empty signature rejected", func(t *testing.T) {
		assert.False(t, c.VerifySignature(body, ""))
	})
}
