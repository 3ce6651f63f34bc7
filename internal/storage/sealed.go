package storage

import (
	"context"
	"fmt"

	"github.com/AnnaKryuchkova/product-console/internal/crypto/clientcrypto"
)

// Sealed encrypts values at rest before handing them to the wrapped Backend.
// The key name is bound as AAD, so a blob cannot be replayed under another key.
type Sealed struct {
	next Backend
	key  []byte
}

// NewSealed wraps next with XChaCha20-Poly1305 sealing under key.
func NewSealed(next Backend, key []byte) (*Sealed, error) {
	if len(key) != clientcrypto.KeyLen {
		return nil, fmt.Errorf("sealing key must be %d bytes, got %d", clientcrypto.KeyLen, len(key))
	}
	return &Sealed{next: next, key: append([]byte(nil), key...)}, nil
}

func (s *Sealed) Get(ctx context.Context, key string) ([]byte, error) {
	blob, err := s.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	pt, err := clientcrypto.Open(s.key, []byte(key), blob)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return pt, nil
}

func (s *Sealed) Set(ctx context.Context, key string, value []byte) error {
	blob, err := clientcrypto.Seal(s.key, []byte(key), value)
	if err != nil {
		return err
	}
	return s.next.Set(ctx, key, blob)
}

func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.next.Delete(ctx, key)
}
