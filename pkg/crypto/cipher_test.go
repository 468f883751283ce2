package crypto

import (
	"testing"

	mderrors "github.com/arthur-debert/microdot/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	c, err := NewCipher(key)
	require.NoError(t, err)

	plaintext := []byte("set -o vi\nexport EDITOR=vim\n")
	ciphertext, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := c.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecryptWrongKey(t *testing.T) {
	key1, err := GenerateKey()
	require.NoError(t, err)
	key2, err := GenerateKey()
	require.NoError(t, err)

	c1, err := NewCipher(key1)
	require.NoError(t, err)
	c2, err := NewCipher(key2)
	require.NoError(t, err)

	ciphertext, err := c1.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = c2.Decrypt(ciphertext)
	require.Error(t, err)
	assert.True(t, mderrors.IsErrorCode(err, mderrors.ErrDecryption))
}

func TestDecryptCorrupted(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	c, err := NewCipher(key)
	require.NoError(t, err)

	ciphertext, err := c.Encrypt([]byte("secret"))
	require.NoError(t, err)

	ciphertext[len(ciphertext)-1] ^= 0xff
	_, err = c.Decrypt(ciphertext)
	assert.True(t, mderrors.IsErrorCode(err, mderrors.ErrDecryption))

	_, err = c.Decrypt([]byte("short"))
	assert.True(t, mderrors.IsErrorCode(err, mderrors.ErrDecryption))
}

func TestNewCipherRejectsBadKeys(t *testing.T) {
	_, err := NewCipher("not-hex")
	assert.True(t, mderrors.IsErrorCode(err, mderrors.ErrConfigValid))

	_, err = NewCipher("abcd")
	assert.True(t, mderrors.IsErrorCode(err, mderrors.ErrConfigValid))
}

func TestHasher(t *testing.T) {
	h := NewHasher()

	sum := h.Sum([]byte("content"))
	assert.Len(t, sum, 16)
	assert.Equal(t, sum, h.Sum([]byte("content")))
	assert.NotEqual(t, sum, h.Sum([]byte("other content")))
}
