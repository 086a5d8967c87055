// Package vault encrypts owner private keys at rest.
//
// Ciphertexts are stored as "<nonce hex>:<ciphertext hex>" where the
// ciphertext is XChaCha20-Poly1305 sealed under a key derived from the
// configured secret with HKDF-SHA256.
package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const hkdfInfo = "safetext/owner-key/v1"

var (
	// ErrEmptySecret is returned when the vault is built without a secret.
	ErrEmptySecret = errors.New("vault: empty secret")
	// ErrMalformed indicates a stored value is not in nonce:ciphertext form.
	ErrMalformed = errors.New("vault: malformed ciphertext")
	// ErrDecrypt indicates authentication failed (wrong secret or tampered value).
	ErrDecrypt = errors.New("vault: decryption failed")
)

// Vault seals and opens secrets with a single symmetric key.
type Vault struct {
	key []byte
}

// New derives the vault key from secret.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}
	return &Vault{key: key}, nil
}

// Encrypt seals plaintext with a fresh random nonce.
func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", fmt.Errorf("vault: init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (v *Vault) Decrypt(encoded string) ([]byte, error) {
	nonceHex, sealedHex, ok := strings.Cut(encoded, ":")
	if !ok {
		return nil, ErrMalformed
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrMalformed
	}
	sealed, err := hex.DecodeString(sealedHex)
	if err != nil {
		return nil, ErrMalformed
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, fmt.Errorf("vault: init cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
