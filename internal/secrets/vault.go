// Package secrets encrypts tool credentials at rest and resolves
// ${{secrets.KEY}} references inside tool configurations.
package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/agentplate/agentplate/pkg/schema"
)

// Vault stores and retrieves secret values. Values are encrypted at rest
// and only decrypted in-memory at resolution time.
type Vault interface {
	Set(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// backend is the persistence surface the vault writes ciphertext through.
// Satisfied by store.Store.
type backend interface {
	StoreSecret(ctx context.Context, key string, value []byte) error
	GetSecret(ctx context.Context, key string) ([]byte, error)
	DeleteSecret(ctx context.Context, key string) error
	ListSecrets(ctx context.Context) ([]string, error)
}

// Config controls key derivation for the AES vault. Provide either a raw
// 32-byte Key, or a Passphrase with Salt for PBKDF2 derivation.
type Config struct {
	Key        []byte
	Passphrase string
	Salt       []byte
	Iterations int
}

// AESVault encrypts values with AES-256-GCM before handing them to the
// persistence backend.
type AESVault struct {
	backend backend
	aead    cipher.AEAD
}

var _ Vault = (*AESVault)(nil)

// NewAESVault builds an AESVault from the given key material.
func NewAESVault(b backend, cfg Config) (*AESVault, error) {
	key, err := cfg.deriveKey()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &AESVault{backend: b, aead: aead}, nil
}

func (cfg Config) deriveKey() ([]byte, error) {
	if len(cfg.Key) > 0 {
		if len(cfg.Key) != 32 {
			return nil, schema.NewErrorf(schema.ErrCodeVault, "vault key must be 32 bytes, got %d", len(cfg.Key))
		}
		return cfg.Key, nil
	}
	if cfg.Passphrase == "" {
		return nil, schema.NewError(schema.ErrCodeVault, "vault needs a key or a passphrase")
	}
	if len(cfg.Salt) == 0 {
		return nil, schema.NewError(schema.ErrCodeVault, "vault passphrase needs a salt")
	}
	iterations := cfg.Iterations
	if iterations <= 0 {
		iterations = 100_000
	}
	return pbkdf2.Key(sha256.New, cfg.Passphrase, cfg.Salt, iterations, 32)
}

func (v *AESVault) Set(ctx context.Context, key string, value []byte) error {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := v.aead.Seal(nonce, nonce, value, nil)
	return v.backend.StoreSecret(ctx, key, ciphertext)
}

func (v *AESVault) Get(ctx context.Context, key string) ([]byte, error) {
	ciphertext, err := v.backend.GetSecret(ctx, key)
	if err != nil {
		return nil, err
	}
	nonceSize := v.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "secret %q has malformed ciphertext", key)
	}
	plaintext, err := v.aead.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "decrypt secret %q: %s", key, err.Error())
	}
	return plaintext, nil
}

func (v *AESVault) Delete(ctx context.Context, key string) error {
	return v.backend.DeleteSecret(ctx, key)
}

func (v *AESVault) Keys(ctx context.Context) ([]string, error) {
	return v.backend.ListSecrets(ctx)
}
