package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// Key-derivation and cipher parameters. Changing these invalidates every
// stored ciphertext, so they are fixed constants rather than config.
const (
	scryptN  = 32768
	scryptR  = 8
	scryptP  = 1
	keyLen   = 32 // AES-256
	saltLen  = 16
	nonceLen = 12 // GCM standard nonce
)

// ErrMalformedCiphertext is returned when stored key material cannot be
// parsed. Distinct from an authentication failure.
var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// EncryptKey seals plaintext under a key derived from the server secret
// and a fresh random salt. Output format: base64(salt || nonce || sealed).
func EncryptKey(secret, plaintext []byte) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(secret, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	blob := make([]byte, 0, saltLen+nonceLen+len(sealed))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptKey reverses EncryptKey. The caller owns the returned plaintext
// and must zero it after use.
func DecryptKey(secret []byte, ciphertext string) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	if len(blob) < saltLen+nonceLen {
		return nil, ErrMalformedCiphertext
	}

	salt := blob[:saltLen]
	nonce := blob[saltLen : saltLen+nonceLen]
	sealed := blob[saltLen+nonceLen:]

	gcm, err := newGCM(secret, salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed key: %w", err)
	}
	return plaintext, nil
}

func newGCM(secret, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(secret, salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	zero(key)
	return gcm, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
