// Package crypto implements the encryption primitive for encrypted
// dotfiles and the content hashing used for identity fingerprints.
//
// Encrypted dotfiles are sealed with AES-256-GCM under a store-wide key.
// Directories are tar-archived first and sealed as a single blob.
// Decryption failure is deterministic: a wrong key or corrupted
// ciphertext always yields a DECRYPTION error, never garbage plaintext.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/arthur-debert/microdot/pkg/errors"
	"github.com/arthur-debert/microdot/pkg/types"
)

// KeySize is the required key length in bytes.
const KeySize = 32

// Cipher seals and opens dotfile blobs.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// keyCipher is the AES-256-GCM implementation of Cipher.
type keyCipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a hex-encoded 32-byte key.
func NewCipher(hexKey string) (Cipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigValid, "encryption key is not valid hex")
	}
	if len(key) != KeySize {
		return nil, errors.Newf(errors.ErrConfigValid, "encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to initialize cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to initialize GCM")
	}

	return &keyCipher{aead: aead}, nil
}

// GenerateKey returns a fresh hex-encoded store key.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", errors.Wrap(err, errors.ErrInternal, "failed to generate key")
	}
	return hex.EncodeToString(key), nil
}

func (c *keyCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, errors.ErrEncryption, "failed to generate nonce")
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *keyCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < c.aead.NonceSize() {
		return nil, errors.New(errors.ErrDecryption, "ciphertext too short")
	}
	nonce, sealed := ciphertext[:c.aead.NonceSize()], ciphertext[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDecryption, "wrong key or corrupted ciphertext")
	}
	return plaintext, nil
}

// hashLength is the number of hex characters kept from the digest. The
// fingerprint is a version marker, not a dedup key, so a short prefix is
// plenty.
const hashLength = 16

// sha256Hasher implements types.Hasher with a truncated SHA-256 digest.
type sha256Hasher struct{}

// NewHasher returns the default content hasher.
func NewHasher() types.Hasher {
	return sha256Hasher{}
}

func (sha256Hasher) Sum(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])[:hashLength]
}
