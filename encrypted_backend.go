package contentbase

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// EncryptedBackend wraps any backend with AES-256-GCM encryption at rest.
//
// Each object is sealed with a random nonce and its own key as associated
// data, so a blob copied to another key fails to open. ETags are those of the
// ciphertext; every write produces a new one.
type EncryptedBackend struct {
	Backend
	aead cipher.AEAD
}

// NewEncryptedBackend wraps backend. key must be 32 bytes.
func NewEncryptedBackend(backend Backend, key []byte) (*EncryptedBackend, error) {
	if len(key) != 32 {
		return nil, WithContext(ErrInvalidConfig, map[string]interface{}{
			"expected_key_length": 32,
			"actual_key_length":   len(key),
			"reason":              "AES-256 requires 32-byte key",
		})
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &EncryptedBackend{Backend: backend, aead: aead}, nil
}

func (e *EncryptedBackend) seal(key string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, []byte(key)), nil
}

func (e *EncryptedBackend) open(key string, sealed []byte) ([]byte, error) {
	n := e.aead.NonceSize()
	if len(sealed) < n {
		return nil, WithContext(ErrInvalidData, map[string]interface{}{
			"key":    key,
			"reason": "ciphertext too short",
		})
	}
	plaintext, err := e.aead.Open(nil, sealed[:n], sealed[n:], []byte(key))
	if err != nil {
		return nil, WithContext(ErrInvalidData, map[string]interface{}{
			"key":    key,
			"reason": "decryption failed",
		})
	}
	return plaintext, nil
}

func (e *EncryptedBackend) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := e.Backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.open(key, sealed)
}

func (e *EncryptedBackend) Put(ctx context.Context, key string, data []byte) error {
	sealed, err := e.seal(key, data)
	if err != nil {
		return err
	}
	return e.Backend.Put(ctx, key, sealed)
}

func (e *EncryptedBackend) GetWithETag(ctx context.Context, key string) ([]byte, string, error) {
	sealed, etag, err := e.Backend.GetWithETag(ctx, key)
	if err != nil {
		return nil, "", err
	}
	plaintext, err := e.open(key, sealed)
	if err != nil {
		return nil, "", err
	}
	return plaintext, etag, nil
}

func (e *EncryptedBackend) PutIfMatch(ctx context.Context, key string, data []byte, expectedETag string) (string, error) {
	sealed, err := e.seal(key, data)
	if err != nil {
		return "", err
	}
	return e.Backend.PutIfMatch(ctx, key, sealed, expectedETag)
}

func (e *EncryptedBackend) PutIfAbsent(ctx context.Context, key string, data []byte) (string, error) {
	sealed, err := e.seal(key, data)
	if err != nil {
		return "", err
	}
	return e.Backend.PutIfAbsent(ctx, key, sealed)
}

// GetStream buffers the object: GCM authenticates the whole ciphertext
// before releasing any plaintext
func (e *EncryptedBackend) GetStream(ctx context.Context, key string) (io.ReadCloser, error) {
	plaintext, err := e.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(plaintext)), nil
}

func (e *EncryptedBackend) PutStream(ctx context.Context, key string, reader io.Reader, size int64) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read stream: %w", err)
	}
	return e.Put(ctx, key, data)
}
