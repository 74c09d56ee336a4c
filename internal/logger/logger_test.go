package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactMasksCredentialKeys(t *testing.T) {
	in := []any{"api_key", "sk-123", "tenant", "acme", "AZURE_SEARCH_API_KEY", "k", "prompt_tokens", 12}
	out := redact(in)

	assert.Equal(t, "[REDACTED]", out[1])
	assert.Equal(t, "acme", out[3])
	assert.Equal(t, "[REDACTED]", out[5])
	assert.Equal(t, 12, out[7])
	// input is not mutated
	assert.Equal(t, "sk-123", in[1])
}

func TestRedactOddLength(t *testing.T) {
	out := redact([]any{"password", "x", "dangling"})
	assert.Equal(t, []any{"password", "[REDACTED]", "dangling"}, out)
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"dev", "prod", ""} {
		l, err := New(mode)
		assert.NoError(t, err, mode)
		l.With("service", "test").Info("hello", "k", 1)
	}
}
