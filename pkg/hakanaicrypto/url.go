package hakanaicrypto

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

var secretIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const maxSecretIDLen = 64

// ShareURL holds the parsed components of a share URL: the secret ID
// (transmitted to the server) and the key/hash carried only in the
// fragment (never transmitted).
type ShareURL struct {
	SecretID string
	Key      []byte
	Hash     []byte
}

// BuildShareURL assembles `<base>/s/<id>#<key_b64url>:<hash_b64url>`.
// base must not have a trailing slash.
func BuildShareURL(base, secretID string, key, hash []byte) string {
	keyB64 := base64.RawURLEncoding.EncodeToString(key)
	hashB64 := base64.RawURLEncoding.EncodeToString(hash)
	return fmt.Sprintf("%s/s/%s#%s:%s", strings.TrimRight(base, "/"), secretID, keyB64, hashB64)
}

// ParseShareURL parses a share URL's path and fragment. It accepts
// either a full URL (scheme://host/s/id#frag) or a bare "/s/id#frag"
// path, since the CLI and the browser collaborator both hand this
// function slightly different inputs.
func ParseShareURL(raw string) (*ShareURL, error) {
	path := raw
	fragment := ""
	if idx := strings.IndexByte(raw, '#'); idx >= 0 {
		path = raw[:idx]
		fragment = raw[idx+1:]
	}

	idx := strings.LastIndex(path, "/s/")
	if idx < 0 {
		return nil, ErrInvalidURLFormat
	}
	secretID := path[idx+len("/s/"):]
	if secretID == "" {
		return nil, ErrMissingSecretID
	}
	if len(secretID) > maxSecretIDLen || !secretIDPattern.MatchString(secretID) {
		return nil, ErrInvalidURLFormat
	}

	if fragment == "" {
		return nil, ErrMissingDecryptionKey
	}

	parts := strings.SplitN(fragment, ":", 2)
	keyB64 := parts[0]
	if keyB64 == "" {
		return nil, ErrMissingDecryptionKey
	}
	key, err := base64.RawURLEncoding.DecodeString(keyB64)
	if err != nil || len(key) != keySize {
		return nil, ErrMissingDecryptionKey
	}

	if len(parts) < 2 || parts[1] == "" {
		return nil, ErrMissingHash
	}
	hash, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil || len(hash) != hashSize {
		return nil, ErrMissingHash
	}

	return &ShareURL{SecretID: secretID, Key: key, Hash: hash}, nil
}
