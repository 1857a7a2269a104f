package vault

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var fastParams = Params{Time: 1, Memory: 1024, Threads: 1}

func TestNewCipherDerivesStableKey(t *testing.T) {
	master := []byte("0123456789abcdef0123456789abcdef")

	first, err := NewCipher(master, WithParams(fastParams))
	require.NoError(t, err)
	second, err := NewCipher(master, WithParams(fastParams))
	require.NoError(t, err)

	require.Len(t, first.Key(), 32)
	require.Equal(t, first.Key(), second.Key())
	require.NotEqual(t, master, first.Key())
}

func TestNewCipherSaltChangesKey(t *testing.T) {
	master := []byte("master-key")

	a, err := NewCipher(master, WithParams(fastParams))
	require.NoError(t, err)
	b, err := NewCipher(master, WithParams(fastParams), WithSalt([]byte("0123456789abcdef")))
	require.NoError(t, err)
	require.NotEqual(t, a.Key(), b.Key())
}

func TestNewCipherValidation(t *testing.T) {
	_, err := NewCipher(nil)
	require.Error(t, err)

	_, err = NewCipher([]byte("k"), WithSalt([]byte("short")))
	require.Error(t, err)

	_, err = NewCipher([]byte("k"), WithParams(Params{}))
	require.Error(t, err)
}

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher([]byte("super-secret-master-key"), WithParams(fastParams))
	require.NoError(t, err)

	sealed, err := c.Encrypt([]byte("wifi-password"))
	require.NoError(t, err)
	require.NotContains(t, sealed, "wifi-password")

	opened, err := c.Decrypt(sealed)
	require.NoError(t, err)
	require.Equal(t, "wifi-password", string(opened))

	other, err := NewCipher([]byte("another-master-key"), WithParams(fastParams))
	require.NoError(t, err)
	_, err = other.Decrypt(sealed)
	require.Error(t, err)
}
