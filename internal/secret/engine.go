package secret

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hakanai/hakanai/internal/auth"
	"github.com/hakanai/hakanai/internal/kv"
	"github.com/hakanai/hakanai/internal/logging"
	"github.com/hakanai/hakanai/internal/metrics"
	"github.com/hakanai/hakanai/internal/wire"
)

const (
	secretKeyPrefix    = "secret:"
	maxIDAllocAttempts = 5
)

// Error is a stable engine-level error mapped to wire.ErrorCode by the
// HTTP handler layer.
type Error struct {
	Code    wire.ErrorCode
	Message string
}

func (e *Error) Error() string { return e.Message }

// ErrCode returns the wire error code the HTTP layer maps to a status.
func (e *Error) ErrCode() wire.ErrorCode { return e.Code }

func newError(code wire.ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// CreateParams is the validated input to Engine.Create.
type CreateParams struct {
	Ciphertext   string
	ExpiresIn    time.Duration
	Restrictions *wire.Restrictions
}

// Engine implements the server secret engine (C3): admission is the
// caller's job (auth + size already checked before Create is called);
// Engine owns allocation, persistence, and the atomic retrieve-and-
// destroy state machine.
type Engine struct {
	kv    kv.Store
	chain *Chain
	log   *logging.Logger
	m     *metrics.Metrics
}

// New returns an Engine backed by store, using chain for retrieval-time
// restriction evaluation.
func New(store kv.Store, chain *Chain, log *logging.Logger, m *metrics.Metrics) *Engine {
	return &Engine{kv: store, chain: chain, log: log.WithComponent("secret-engine"), m: m}
}

// Create allocates a fresh secret ID and atomically persists the
// record with KV TTL = ExpiresIn. ID collisions are retried up to a
// small bound; exhausting the bound is a fatal INTERNAL error.
func (e *Engine) Create(ctx context.Context, p CreateParams) (string, error) {
	rec := Record{
		Ciphertext:     p.Ciphertext,
		Restrictions:   p.Restrictions,
		PassphraseHash: passphraseHash(p.Restrictions),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", newError(wire.ErrInternal, "encode record")
	}

	for attempt := 0; attempt < maxIDAllocAttempts; attempt++ {
		id := uuid.NewString()
		err := e.kv.SetNX(ctx, secretKeyPrefix+id, raw, p.ExpiresIn)
		if err == nil {
			if e.m != nil {
				e.m.SecretsCreated.Inc()
			}
			return id, nil
		}
		if !errors.Is(err, kv.ErrExists) {
			return "", newError(wire.ErrInternal, fmt.Sprintf("persist record: %v", err))
		}
	}

	return "", newError(wire.ErrInternal, "secret ID allocation exhausted")
}

// Retrieve implements the critical section: atomic fetch-and-delete,
// passphrase gate, restriction chain, restore-on-denial.
func (e *Engine) Retrieve(ctx context.Context, id string, rc RequestContext, passphraseHashHeader string) (string, error) {
	key := secretKeyPrefix + id

	raw, ttl, err := e.kv.GetDelWithTTL(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return "", newError(wire.ErrSecretNotFound, "secret not found")
	}
	if err != nil {
		return "", newError(wire.ErrInternal, fmt.Sprintf("fetch record: %v", err))
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", newError(wire.ErrInternal, "decode record")
	}

	if rec.PassphraseHash != "" {
		if passphraseHashHeader == "" || !auth.ConstantTimeHashEqual(passphraseHashHeader, rec.PassphraseHash) {
			e.restore(ctx, key, raw, ttl)
			e.log.WithSecret(id).WithIP(ipString(rc)).WithRestriction("passphrase", "deny").Info().Msg("retrieval denied")
			if e.m != nil {
				e.m.SecretsDenied.WithLabelValues("passphrase").Inc()
			}
			return "", newError(wire.ErrPassphraseRequired, "passphrase missing or incorrect")
		}
	}

	decision, evaluator, err := e.chain.Evaluate(ctx, rc, rec.Restrictions)
	if err != nil {
		e.restore(ctx, key, raw, ttl)
		e.log.WithSecret(id).WithIP(ipString(rc)).WithRestriction(evaluator, "disabled").Info().Msg("retrieval denied")
		if e.m != nil {
			e.m.SecretsDenied.WithLabelValues("unsupported").Inc()
		}
		return "", newError(wire.ErrNotSupported, err.Error())
	}
	if decision == Deny {
		e.restore(ctx, key, raw, ttl)
		e.log.WithSecret(id).WithIP(ipString(rc)).WithRestriction(evaluator, "deny").Info().Msg("retrieval denied")
		if e.m != nil {
			e.m.SecretsDenied.WithLabelValues("restriction").Inc()
		}
		return "", newError(wire.ErrAccessDenied, "access denied by restriction policy")
	}

	e.log.WithSecret(id).Debug().Msg("retrieval succeeded")
	if e.m != nil {
		e.m.SecretsRetrieved.Inc()
	}
	return rec.Ciphertext, nil
}

func ipString(rc RequestContext) string {
	if rc.IP == nil {
		return ""
	}
	return rc.IP.String()
}

// restore is best-effort: per spec.md §4.3, if it fails the secret is
// simply lost, which is an acceptable brute-force deterrent.
func (e *Engine) restore(ctx context.Context, key string, raw []byte, ttl time.Duration) {
	if err := e.kv.Restore(ctx, key, raw, ttl); err != nil {
		e.log.Warn().Err(err).Str("key", key).Msg("failed to restore record after denied retrieval")
	}
}

func passphraseHash(r *wire.Restrictions) string {
	if r == nil {
		return ""
	}
	return r.PassphraseHash
}
