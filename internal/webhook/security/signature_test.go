package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignPayload(t *testing.T) {
	secret := "my-secret-key"
	payload := []byte(`{"event": "test", "data": {"id": 123}}`)

	signature := SignPayload(secret, payload)

	assert.NotEmpty(t, signature)
	assert.Len(t, signature, 64) // SHA256 produces 32 bytes = 64 hex chars
}

func TestSignPayload_Deterministic(t *testing.T) {
	secret := "my-secret-key"
	payload := []byte(`{"event": "test"}`)

	sig1 := SignPayload(secret, payload)
	sig2 := SignPayload(secret, payload)

	assert.Equal(t, sig1, sig2)
}

func TestSignPayload_DifferentSecrets(t *testing.T) {
	payload := []byte(`{"event": "test"}`)

	sig1 := SignPayload("secret-1", payload)
	sig2 := SignPayload("secret-2", payload)

	assert.NotEqual(t, sig1, sig2)
}

func TestSignPayload_DifferentPayloads(t *testing.T) {
	secret := "my-secret"

	sig1 := SignPayload(secret, []byte(`{"a": 1}`))
	sig2 := SignPayload(secret, []byte(`{"a": 2}`))

	assert.NotEqual(t, sig1, sig2)
}
