package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func cheapParams() Argon2Parameters {
	return Argon2Parameters{Time: 1, Memory: 64, Threads: 1, KeyLength: 32}
}

func TestDeriveKeyArgon2idDeterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{0xA5}, 16)

	key1, err := DeriveKeyArgon2id([]byte("secret"), salt, cheapParams())
	require.NoError(t, err)
	key2, err := DeriveKeyArgon2id([]byte("secret"), salt, cheapParams())
	require.NoError(t, err)

	require.Equal(t, key1, key2)
	require.Len(t, key1, 32)
}

func TestDeriveKeyArgon2idDifferentSalts(t *testing.T) {
	keyA, err := DeriveKeyArgon2id([]byte("secret"), bytes.Repeat([]byte{0x01}, 16), cheapParams())
	require.NoError(t, err)
	keyB, err := DeriveKeyArgon2id([]byte("secret"), bytes.Repeat([]byte{0x02}, 16), cheapParams())
	require.NoError(t, err)
	require.NotEqual(t, keyA, keyB)
}

func TestDeriveKeyArgon2idRejectsBadInput(t *testing.T) {
	_, err := DeriveKeyArgon2id(nil, bytes.Repeat([]byte{0x01}, 16), cheapParams())
	require.ErrorContains(t, err, "secret is required")

	_, err = DeriveKeyArgon2id([]byte("secret"), []byte("short"), cheapParams())
	require.ErrorContains(t, err, "salt must be at least 16 bytes")

	bad := cheapParams()
	bad.Time = 0
	_, err = DeriveKeyArgon2id([]byte("secret"), bytes.Repeat([]byte{0x01}, 16), bad)
	require.ErrorContains(t, err, "time cost")
}

func TestWithDefaults(t *testing.T) {
	p := Argon2Parameters{Time: 1}.WithDefaults()
	require.Equal(t, uint32(1), p.Time)
	require.Equal(t, DefaultArgon2Params().Memory, p.Memory)
	require.NoError(t, p.Validate())
}
