package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	digest, err := h.Hash("password123")
	require.NoError(t, err)
	assert.NotEqual(t, "password123", digest)

	assert.True(t, h.Verify("password123", digest))
	assert.False(t, h.Verify("password124", digest))
	assert.False(t, h.Verify("password123", "not-a-digest"))

	again, err := h.Hash("password123")
	require.NoError(t, err)
	assert.NotEqual(t, digest, again, "ソルトにより毎回異なるダイジェストになる")
}

func TestNewBcryptHasher_範囲外のコストは既定値(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(100).cost)
	assert.Equal(t, 12, NewBcryptHasher(12).cost)
}
