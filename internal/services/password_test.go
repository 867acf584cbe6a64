package services

import (
	"strings"
	"testing"

	"github.com/imbroke/backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testArgon2Config() config.Argon2Config {
	return config.Argon2Config{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLength: 32, SaltLength: 16}
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(testArgon2Config())

	hashed, err := h.Hash("hunter22")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(hashed, "$"))
	assert.NotContains(t, hashed, "hunter22")

	assert.True(t, h.Verify("hunter22", hashed))
	assert.False(t, h.Verify("hunter23", hashed))
	assert.False(t, h.Verify("hunter22", "no-separator"))
	assert.False(t, h.Verify("hunter22", "!!$!!"))

	again, err := h.Hash("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, hashed, again, "salt must differ per hash")
}
