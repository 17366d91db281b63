// Package auth authenticates API keys stored as HMAC-SHA256 digests.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// ErrUnauthorized is returned for a missing, unknown or mismatched key.
var ErrUnauthorized = errors.New("unauthorized")

// ScopeCheckout allows placing orders.
const ScopeCheckout = "checkout"

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// Allows reports whether the key grants scope. A key without scopes grants
// everything.
func (i *APIKeyInfo) Allows(scope string) bool {
	return len(i.Scopes) == 0 || slices.Contains(i.Scopes, scope)
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashKey returns the hex HMAC-SHA256 digest of key under pepper.
func HashKey(pepper []byte, key string) string {
	return hex.EncodeToString(digest(pepper, key))
}

func digest(pepper []byte, key string) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// Authenticator verifies raw API keys against a Repository.
type Authenticator struct {
	keys   Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(keys Repository, pepper []byte) *Authenticator {
	return &Authenticator{keys: keys, pepper: pepper}
}

// Authenticate resolves key and checks that it grants scope. Every failure
// maps to ErrUnauthorized.
func (a *Authenticator) Authenticate(ctx context.Context, key, scope string) (*APIKeyInfo, error) {
	if key == "" {
		return nil, ErrUnauthorized
	}
	sum := digest(a.pepper, key)

	info, err := a.keys.FindByHash(ctx, hex.EncodeToString(sum))
	if err != nil {
		return nil, errors.Wrap(ErrUnauthorized, err.Error())
	}
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(sum, stored) != 1 {
		return nil, ErrUnauthorized
	}
	if !info.Allows(scope) {
		return nil, ErrUnauthorized
	}
	return info, nil
}
