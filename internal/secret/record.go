// Package secret implements the server secret engine: admission,
// atomic create, and atomic get-and-destroy retrieval, including the
// restriction-evaluator chain and the passphrase gate.
package secret

import "github.com/hakanai/hakanai/internal/wire"

// Record is the JSON shape persisted in the KV store under
// secret:<id>. expires_at is not a field: it is carried entirely by
// the KV key's TTL.
type Record struct {
	Ciphertext     string             `json:"ciphertext"`
	Restrictions   *wire.Restrictions `json:"restrictions,omitempty"`
	PassphraseHash string             `json:"passphrase_hash,omitempty"`
}
