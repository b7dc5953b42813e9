package cryptox

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	t.Run("generates hex of expected length", func(t *testing.T) {
		token, err := GenerateToken(TokenSize128)
		require.NoError(t, err)
		require.Len(t, token, TokenSize128*2)
	})

	t.Run("rejects non-positive sizes", func(t *testing.T) {
		_, err := GenerateToken(0)
		require.Error(t, err)
		_, err = GenerateToken(-4)
		require.Error(t, err)
	})

	t.Run("tokens are unique", func(t *testing.T) {
		seen := make(map[string]struct{})
		for range 1000 {
			token, err := GenerateToken(TokenSize128)
			require.NoError(t, err)
			_, dup := seen[token]
			require.False(t, dup, "duplicate token generated")
			seen[token] = struct{}{}
		}
	})
}

func TestGenerateNumericCode(t *testing.T) {
	t.Parallel()

	t.Run("fixed length with zero padding", func(t *testing.T) {
		for range 500 {
			code, err := GenerateNumericCode(6)
			require.NoError(t, err)
			require.Len(t, code, 6)

			n, err := strconv.Atoi(code)
			require.NoError(t, err)
			require.GreaterOrEqual(t, n, 0)
			require.Less(t, n, 1000000)
		}
	})

	t.Run("supports other lengths", func(t *testing.T) {
		code, err := GenerateNumericCode(8)
		require.NoError(t, err)
		require.Len(t, code, 8)
	})

	t.Run("rejects out of range lengths", func(t *testing.T) {
		_, err := GenerateNumericCode(0)
		require.Error(t, err)
		_, err = GenerateNumericCode(19)
		require.Error(t, err)
	})
}

func TestSecureCompare(t *testing.T) {
	t.Parallel()

	require.True(t, SecureCompare("abc123", "abc123"))
	require.False(t, SecureCompare("abc123", "abc124"))
	require.False(t, SecureCompare("abc", "abcdef"))
	require.True(t, SecureCompare("", ""))
}

func TestFingerprintToken(t *testing.T) {
	t.Parallel()

	fp1 := FingerprintToken("some-token")
	fp2 := FingerprintToken("some-token")
	fp3 := FingerprintToken("other-token")

	require.Equal(t, fp1, fp2)
	require.NotEqual(t, fp1, fp3)
	require.Len(t, fp1, 43)
}
