package crypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateTokenHasAtLeast256Bits(t *testing.T) {
	token, err := GenerateToken(8)
	require.NoError(t, err)
	require.Len(t, token, MinTokenBytes*2)

	other, err := GenerateToken(MinTokenBytes)
	require.NoError(t, err)
	require.NotEqual(t, token, other)
}

func TestGenerateTokenFromUsesReader(t *testing.T) {
	src := bytes.NewReader(bytes.Repeat([]byte{0xAB}, 64))
	token, err := GenerateTokenFrom(src, 32)
	require.NoError(t, err)
	require.Equal(t, string(bytes.Repeat([]byte("ab"), 32)), token)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerateTokenFromReaderFailure(t *testing.T) {
	_, err := GenerateTokenFrom(failingReader{}, 32)
	require.ErrorContains(t, err, "entropy exhausted")

	_, err = GenerateSalt(failingReader{})
	require.Error(t, err)
}

func TestHashAndVerifyPassword(t *testing.T) {
	salt, err := GenerateSalt(nil)
	require.NoError(t, err)
	require.Len(t, salt, DefaultSaltBytes)

	hash, encodedSalt, err := HashPassword("Sup3rSecret", salt, cheapParams())
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	require.True(t, VerifyPassword("Sup3rSecret", hash, encodedSalt, cheapParams()))
	require.False(t, VerifyPassword("wrong-password", hash, encodedSalt, cheapParams()))
	require.False(t, VerifyPassword("Sup3rSecret", hash, "zz-not-hex", cheapParams()))
	require.False(t, VerifyPassword("", hash, encodedSalt, cheapParams()))
}

func TestHashPasswordRequiresPassword(t *testing.T) {
	_, _, err := HashPassword("", bytes.Repeat([]byte{1}, 16), cheapParams())
	require.Error(t, err)
}

func TestEqualConstantTime(t *testing.T) {
	require.True(t, EqualConstantTime("blue sedan", "blue sedan"))
	require.False(t, EqualConstantTime("blue sedan", "red sedan"))
}
