package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/insightsync/internal/config"
	"golang.org/x/crypto/chacha20poly1305"
	"go.uber.org/fx"
)

var Module = fx.Module("secrets",
	fx.Provide(NewFromConfig),
)

var (
	ErrInvalidKey        = errors.New("invalid_encryption_key")
	ErrInvalidCiphertext = errors.New("invalid_ciphertext")
	ErrNotConfigured     = errors.New("encryption_not_configured")
)

// Cipher seals provider tokens at rest with XChaCha20-Poly1305. Ciphertexts
// are base64(nonce || sealed).
type Cipher struct {
	key []byte
}

// NewCipher takes a base64 encoded 32 byte key.
func NewCipher(encodedKey string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encodedKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, chacha20poly1305.KeySize, len(key))
	}
	return &Cipher{key: key}, nil
}

// NewFromConfig returns a nil Cipher when TOKEN_ENCRYPTION_KEY is unset;
// Encrypt and Decrypt then fail with ErrNotConfigured.
func NewFromConfig(cfg config.Config) (*Cipher, error) {
	if cfg.TokenEncryptionKey == "" {
		return nil, nil
	}
	return NewCipher(cfg.TokenEncryptionKey)
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if c == nil {
		return "", ErrNotConfigured
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if c == nil {
		return "", ErrNotConfigured
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrInvalidCiphertext
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	return string(plain), nil
}
