package server

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hakanai/hakanai/internal/auth"
	"github.com/hakanai/hakanai/internal/secret"
	"github.com/hakanai/hakanai/internal/wire"
)

func (s *Server) handleCreateSecret(w http.ResponseWriter, r *http.Request) {
	limit, err := s.resolveUploadLimit(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		s.writeError(w, newWireError(wire.ErrSendFailed, "read request body"))
		return
	}
	if int64(len(body)) > limit {
		s.writeError(w, newWireError(wire.ErrPayloadTooLarge, "request body exceeds the caller's size limit"))
		return
	}

	var req wire.CreateSecretRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, newWireError(wire.ErrSendFailed, "malformed request body"))
		return
	}

	if req.Restrictions != nil {
		if err := auth.ValidateRestrictions(req.Restrictions); err != nil {
			s.writeError(w, newWireError(wire.ErrInvalidRestrictions, err.Error()))
			return
		}
		if len(req.Restrictions.AllowedCountries) > 0 && !s.cfg.Restrict.EnableCountryRestrictions {
			s.writeError(w, newWireError(wire.ErrNotSupported, "country restrictions are disabled"))
			return
		}
		if len(req.Restrictions.AllowedASNs) > 0 && !s.cfg.Restrict.EnableASNRestrictions {
			s.writeError(w, newWireError(wire.ErrNotSupported, "ASN restrictions are disabled"))
			return
		}
	}

	expiresIn := s.cfg.Secret.DefaultTTL
	if req.ExpiresIn > 0 {
		expiresIn = time.Duration(req.ExpiresIn) * time.Second
		if expiresIn > s.cfg.Secret.MaxTTL {
			s.writeError(w, newWireError(wire.ErrInvalidRestrictions, "expires_in exceeds the configured maximum"))
			return
		}
	}

	id, err := s.engine.Create(r.Context(), secret.CreateParams{
		Ciphertext:   req.Data,
		ExpiresIn:    expiresIn,
		Restrictions: req.Restrictions,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, wire.CreateSecretResponse{ID: id})
}

func (s *Server) handleRetrieveSecret(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rc := secret.RequestContext{IP: net.ParseIP(clientIP(r, s.cfg.Server.TrustProxyHops))}
	passphraseHash := r.Header.Get(wire.HeaderSecretPassphrase)

	ciphertext, err := s.engine.Retrieve(r.Context(), id, rc, passphraseHash)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ciphertext))
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, wire.ConfigResponse{
		CountryRestrictionsEnabled: s.cfg.Restrict.EnableCountryRestrictions,
		ASNRestrictionsEnabled:     s.cfg.Restrict.EnableASNRestrictions,
		DefaultTTL:                 int64(s.cfg.Secret.DefaultTTL.Seconds()),
		MaxTTL:                     int64(s.cfg.Secret.MaxTTL.Seconds()),
		AnonymousSizeLimit:         s.cfg.Secret.AnonymousSizeLimit,
	})
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	var req wire.CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, newWireError(wire.ErrSendFailed, "malformed request body"))
		return
	}

	token, err := s.tokens.CreateUserToken(r.Context(), req.UploadSizeLimit)
	if err != nil {
		s.writeError(w, newWireError(wire.ErrInternal, "create token"))
		return
	}

	s.writeJSON(w, http.StatusOK, wire.CreateTokenResponse{Token: token})
}

func (s *Server) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	hash := chi.URLParam(r, "hash")
	if err := s.tokens.RevokeUserTokenByHash(r.Context(), hash); err != nil {
		s.writeError(w, newWireError(wire.ErrInternal, "revoke token"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSecretPage serves the receiver-facing HTML page. The page
// itself is an external UI collaborator (spec.md §6); this handler
// only needs to exist so the route resolves during local testing.
func (s *Server) handleSecretPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<!DOCTYPE html><html><body>hakanai</body></html>"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	if !started {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// resolveUploadLimit implements the "authenticated or anonymous" size
// admission gate of spec.md §4.4, before any body is read.
func (s *Server) resolveUploadLimit(r *http.Request) (int64, error) {
	bearer := extractBearerToken(r)
	if bearer == "" {
		if s.cfg.Secret.AnonymousSizeLimit <= 0 {
			return 0, newWireError(wire.ErrAuthenticationRequired, "anonymous uploads are disabled")
		}
		return s.admission.ResolveLimit(nil), nil
	}

	rec, err := s.tokens.VerifyUserToken(r.Context(), bearer)
	if errors.Is(err, auth.ErrInvalidToken) {
		return 0, newWireError(wire.ErrInvalidToken, "unknown bearer token")
	}
	if err != nil {
		return 0, newWireError(wire.ErrInternal, "verify token")
	}
	return s.admission.ResolveLimit(rec), nil
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	bearer := extractBearerToken(r)
	if bearer == "" {
		s.writeError(w, newWireError(wire.ErrAuthenticationRequired, "admin bearer token required"))
		return false
	}

	ok, err := s.tokens.VerifyAdminToken(r.Context(), bearer)
	if err != nil {
		s.writeError(w, newWireError(wire.ErrInternal, "verify admin token"))
		return false
	}
	if !ok {
		s.writeError(w, newWireError(wire.ErrInvalidToken, "invalid admin token"))
		return false
	}
	return true
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get(wire.HeaderAuthorization)
	if !strings.HasPrefix(h, wire.AuthorizationBearerPfx) {
		return ""
	}
	return strings.TrimPrefix(h, wire.AuthorizationBearerPfx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// codedError is implemented by both secret.Error (engine-level
// failures) and wireError (handler-level failures), letting writeError
// map either to a wire.ErrorCode without a type switch per call site.
type codedError interface {
	error
	ErrCode() wire.ErrorCode
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := wire.ErrInternal
	msg := "internal error"

	var ce codedError
	if errors.As(err, &ce) {
		code = ce.ErrCode()
		msg = ce.Error()
	}

	if s.metrics != nil {
		s.metrics.RecordError(string(code))
	}

	s.writeJSON(w, wire.StatusFor(code), wire.ErrorResponse{Code: code, Message: msg})
}

func newWireError(code wire.ErrorCode, msg string) error {
	return &wireError{code: code, msg: msg}
}

type wireError struct {
	code wire.ErrorCode
	msg  string
}

func (e *wireError) Error() string           { return e.msg }
func (e *wireError) ErrCode() wire.ErrorCode { return e.code }
