package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultKeyCost   = bcrypt.DefaultCost
	DefaultKeyLength = 32
	keyPrefix        = "rk_"
)

// GenerateKey returns a new random API key. Store only its HashKey output.
func GenerateKey() (string, error) {
	b := make([]byte, DefaultKeyLength)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("auth: generate key: %w", err)
	}
	return keyPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// HashKey hashes raw with bcrypt. A cost outside bcrypt's range falls back
// to DefaultKeyCost.
func HashKey(raw string, cost int) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrKeyInvalid
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultKeyCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(raw), cost)
	if err != nil {
		return "", fmt.Errorf("auth: hash key: %w", err)
	}
	return string(hashed), nil
}

type namedHash struct {
	name string
	hash []byte
}

// KeyVerifier checks raw keys against a set of bcrypt hashes. It is safe for
// concurrent use.
type KeyVerifier struct {
	mu     sync.RWMutex
	hashes []namedHash
}

var _ Verifier = (*KeyVerifier)(nil)

func NewKeyVerifier() *KeyVerifier { return &KeyVerifier{} }

// Add registers a bcrypt hash under name. The hash is checked for a valid
// bcrypt prefix and cost.
func (v *KeyVerifier) Add(name, hash string) error {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return fmt.Errorf("auth: add key %q: %w", name, err)
	}
	v.mu.Lock()
	v.hashes = append(v.hashes, namedHash{name: name, hash: []byte(hash)})
	v.mu.Unlock()
	return nil
}

// Len reports how many keys are registered.
func (v *KeyVerifier) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.hashes)
}

// VerifyKey trims surrounding whitespace from raw, as HashKey does, before
// comparing it with every registered hash.
func (v *KeyVerifier) VerifyKey(ctx context.Context, raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, ErrKeyNotFound
	}
	v.mu.RLock()
	hashes := v.hashes
	v.mu.RUnlock()

	for _, h := range hashes {
		if err := ctx.Err(); err != nil {
			return Principal{}, err
		}
		err := bcrypt.CompareHashAndPassword(h.hash, []byte(raw))
		if err == nil {
			return Principal{Name: h.name}, nil
		}
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return Principal{}, fmt.Errorf("auth: verify key: %w", err)
		}
	}
	return Principal{}, ErrKeyInvalid
}
