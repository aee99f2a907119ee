package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var (
	ErrMissingKey   = errors.New("CREDENTIALS_KEY is not set")
	ErrInvalidKey   = errors.New("CREDENTIALS_KEY must be 32 bytes, base64 encoded")
	ErrDecryptFails = errors.New("sealed value could not be opened")
)

func loadKey(encoded string) (*[keySize]byte, error) {
	if encoded == "" {
		return nil, ErrMissingKey
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) != keySize {
		return nil, ErrInvalidKey
	}
	var key [keySize]byte
	copy(key[:], raw)
	return &key, nil
}

// GenerateKey returns a new random base64 credentials key.
func GenerateKey() (string, error) {
	var key [keySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}

// EncryptString seals plain with the configured credentials key. The output is
// base64(nonce || box).
func EncryptString(plain string) (string, error) {
	return encryptWithKey(GetConfig().CredentialsKey, plain)
}

// DecryptString opens a value produced by EncryptString.
func DecryptString(sealed string) (string, error) {
	return decryptWithKey(GetConfig().CredentialsKey, sealed)
}

func encryptWithKey(encodedKey, plain string) (string, error) {
	key, err := loadKey(encodedKey)
	if err != nil {
		return "", err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plain), &nonce, key)
	return base64.StdEncoding.EncodeToString(out), nil
}

func decryptWithKey(encodedKey, sealed string) (string, error) {
	key, err := loadKey(encodedKey)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrDecryptFails
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, key)
	if !ok {
		return "", ErrDecryptFails
	}
	return string(plain), nil
}
