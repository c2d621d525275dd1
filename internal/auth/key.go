// Package auth verifies the shared key the game proxy presents on every bridge call.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidKey is returned when the presented key does not match the configured hash.
var ErrInvalidKey = errors.New("invalid API key")

// KeyPrefix marks Sentinel bridge keys.
const KeyPrefix = "snt_"

// GenerateKey creates a new bridge key and its bcrypt hash. The raw key is:
// 32 random bytes -> base64url -> prepend "snt_".
func GenerateKey(cost int) (rawKey, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generating random bytes: %w", err)
	}

	rawKey = KeyPrefix + base64.RawURLEncoding.EncodeToString(b)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(rawKey), cost)
	if err != nil {
		return "", "", fmt.Errorf("hashing key: %w", err)
	}
	return rawKey, string(hashBytes), nil
}

// KeyVerifier checks presented keys against one bcrypt hash. A key that passed
// bcrypt once is remembered by its SHA-256 digest so the login path pays the
// bcrypt cost only on the first request.
type KeyVerifier struct {
	hash []byte

	mu       sync.RWMutex
	verified []byte
}

// NewKeyVerifier creates a verifier for hash, rejecting anything that is not a bcrypt hash.
func NewKeyVerifier(hash string) (*KeyVerifier, error) {
	hash = strings.TrimSpace(hash)
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("parsing bridge key hash: %w", err)
	}
	return &KeyVerifier{hash: []byte(hash)}, nil
}

// Authenticate returns nil if rawKey matches the configured hash, ErrInvalidKey otherwise.
func (v *KeyVerifier) Authenticate(_ context.Context, rawKey string) error {
	if rawKey == "" {
		return ErrInvalidKey
	}
	digest := sha256.Sum256([]byte(rawKey))

	v.mu.RLock()
	cached := v.verified
	v.mu.RUnlock()
	if cached != nil && subtle.ConstantTimeCompare(cached, digest[:]) == 1 {
		return nil
	}

	if bcrypt.CompareHashAndPassword(v.hash, []byte(rawKey)) != nil {
		return ErrInvalidKey
	}

	v.mu.Lock()
	v.verified = digest[:]
	v.mu.Unlock()
	return nil
}
