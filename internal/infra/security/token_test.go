package security

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateNumericCode(t *testing.T) {
	code, err := GenerateNumericCode(6)
	require.NoError(t, err)
	require.Len(t, code, 6)
	for _, r := range code {
		require.True(t, r >= '0' && r <= '9', "unexpected rune %q", r)
	}

	_, err = GenerateNumericCode(0)
	require.Error(t, err)
}

func TestGenerateSecureTokenIsUnique(t *testing.T) {
	first, err := GenerateSecureToken(32)
	require.NoError(t, err)
	second, err := GenerateSecureToken(32)
	require.NoError(t, err)

	require.NotEmpty(t, first)
	require.NotEqual(t, first, second)
	require.Len(t, HashToken(first), 64)
	require.Equal(t, HashToken(first), HashToken(first))
}

func TestCodesEqual(t *testing.T) {
	require.True(t, CodesEqual("123456", "123456"))
	require.False(t, CodesEqual("123456", "123457"))
	require.False(t, CodesEqual("123456", "12345"))
}
