// Package auth implements bearer-token verification, admin token
// management, and per-tier upload size admission.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hakanai/hakanai/internal/kv"
)

const (
	userTokenPrefix  = "token:user:"
	adminTokenPrefix = "token:admin:"
	tokenBytes       = 32
)

// ErrInvalidToken is returned when a presented token does not hash to
// a known record.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenRecord is the JSON record stored under token:user:<hash>.
type TokenRecord struct {
	UploadSizeLimit int64     `json:"upload_size_limit"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store verifies bearer tokens by SHA-256 hash lookup against the KV
// store. It intentionally never compares tokens in plaintext beyond
// the hashing step, and never holds a signing key — this is an opaque
// hashed-token scheme, not JWT (see DESIGN.md).
type Store struct {
	kv kv.Store
}

// New returns a Store backed by the given KV store.
func New(store kv.Store) *Store {
	return &Store{kv: store}
}

// HashToken returns the lowercase hex SHA-256 of a bearer token string.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyUserToken looks up token and returns its record. ErrInvalidToken
// if absent.
func (s *Store) VerifyUserToken(ctx context.Context, token string) (*TokenRecord, error) {
	raw, err := s.kv.Get(ctx, userTokenPrefix+HashToken(token))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	var rec TokenRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode token record: %w", err)
	}
	return &rec, nil
}

// VerifyAdminToken reports whether token hashes to a known admin
// record.
func (s *Store) VerifyAdminToken(ctx context.Context, token string) (bool, error) {
	exists, err := s.kv.Exists(ctx, adminTokenPrefix+HashToken(token))
	if err != nil {
		return false, err
	}
	return exists, nil
}

// CreateUserToken generates a fresh random token, stores only its
// hash with the given upload size limit, and returns the plaintext
// token exactly once.
func (s *Store) CreateUserToken(ctx context.Context, uploadSizeLimit int64) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}

	rec := TokenRecord{UploadSizeLimit: uploadSizeLimit, CreatedAt: time.Now().UTC()}
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}

	if err := s.kv.Set(ctx, userTokenPrefix+HashToken(token), raw, 0); err != nil {
		return "", err
	}
	return token, nil
}

// RevokeUserTokenByHash deletes a user token record by its hash (the
// admin-facing DELETE endpoint takes the hash, not the plaintext
// token, per spec.md §6).
func (s *Store) RevokeUserTokenByHash(ctx context.Context, hash string) error {
	return s.kv.Delete(ctx, userTokenPrefix+hash)
}

func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ConstantTimeHashEqual compares two hex-encoded SHA-256 hashes in
// constant time, used for the passphrase-hash header check.
func ConstantTimeHashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
