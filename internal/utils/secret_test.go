package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashSecret(t *testing.T) {
	hash, err := HashSecret("a-very-long-webhook-secret")
	require.NoError(t, err)

	assert.True(t, CheckSecret(hash, "a-very-long-webhook-secret"))
	assert.False(t, CheckSecret(hash, "a-very-long-webhook-secreT"))
	assert.False(t, CheckSecret("not-a-hash", "a-very-long-webhook-secret"))
}

func TestHashSecret_TooShort(t *testing.T) {
	_, err := HashSecret("short")
	assert.Error(t, err)
}
