package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hakanai/hakanai/internal/auth"
	"github.com/hakanai/hakanai/internal/geoip"
	"github.com/hakanai/hakanai/internal/kv"
	"github.com/hakanai/hakanai/internal/logging"
	"github.com/hakanai/hakanai/internal/metrics"
	"github.com/hakanai/hakanai/internal/ratelimit"
	"github.com/hakanai/hakanai/internal/secret"
	"github.com/hakanai/hakanai/internal/wire"
)

// newTestServer builds a Server against an in-memory KV store, bypassing
// New's Redis dial so these tests run without any external service.
func newTestServer(t *testing.T) (*Server, kv.Store) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Secret.AnonymousSizeLimit = 1024
	cfg.RateLimit.Enabled = false
	cfg.Metrics.Enabled = false

	store := kv.NewMemoryStore()
	log := logging.New(logging.Config{Level: "error"})
	m := metrics.New()

	var geoDB *geoip.DB
	chain := secret.NewChain(cfg.Restrict.EnableCountryRestrictions, cfg.Restrict.EnableASNRestrictions, geoDB)
	engine := secret.New(store, chain, log, m)
	tokens := auth.New(store)

	s := &Server{
		cfg:         cfg,
		log:         log.WithComponent("server"),
		metrics:     m,
		store:       store,
		engine:      engine,
		tokens:      tokens,
		admission:   auth.Admission{AnonymousSizeLimit: cfg.Secret.AnonymousSizeLimit},
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{}),
	}
	s.middleware = newMiddleware(cfg, log, m, s.rateLimiter)
	s.started = true

	t.Cleanup(func() { s.rateLimiter.Stop() })

	return s, store
}

func createSecret(t *testing.T, h http.Handler, body wire.CreateSecretRequest) string {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/secret", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("create: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp wire.CreateSecretResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("create: decode response: %v", err)
	}
	return resp.ID
}

func getSecret(h http.Handler, id, passphraseHash string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/secret/"+id, nil)
	if passphraseHash != "" {
		req.Header.Set(wire.HeaderSecretPassphrase, passphraseHash)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestScenarioTextRoundTripThenNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.routes()

	id := createSecret(t, h, wire.CreateSecretRequest{Data: "ciphertext-for-hello", ExpiresIn: 60})

	rec := getSecret(h, id, "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ciphertext-for-hello" {
		t.Fatalf("first GET: status=%d body=%q", rec.Code, rec.Body.String())
	}

	rec = getSecret(h, id, "")
	assertErrorCode(t, rec, http.StatusNotFound, wire.ErrSecretNotFound)
}

func TestScenarioPassphraseGate(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.routes()

	correct := auth.HashToken("opensesame")
	wrong := auth.HashToken("wrong")

	id := createSecret(t, h, wire.CreateSecretRequest{
		Data:      "ciphertext",
		ExpiresIn: 60,
		Restrictions: &wire.Restrictions{
			PassphraseHash: correct,
		},
	})

	rec := getSecret(h, id, "")
	assertErrorCode(t, rec, http.StatusUnauthorized, wire.ErrPassphraseRequired)

	rec = getSecret(h, id, wrong)
	assertErrorCode(t, rec, http.StatusUnauthorized, wire.ErrPassphraseRequired)

	rec = getSecret(h, id, correct)
	if rec.Code != http.StatusOK || rec.Body.String() != "ciphertext" {
		t.Fatalf("GET with correct passphrase: status=%d body=%q", rec.Code, rec.Body.String())
	}
}

func TestScenarioAnonymousSizeLimitRejectsAndLeavesNoRecord(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.routes()

	oversized := string(bytes.Repeat([]byte("x"), int(s.cfg.Secret.AnonymousSizeLimit)+1))
	raw, _ := json.Marshal(wire.CreateSecretRequest{Data: oversized, ExpiresIn: 60})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/secret", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assertErrorCode(t, rec, http.StatusRequestEntityTooLarge, wire.ErrPayloadTooLarge)

	rec = getSecret(h, "any-nonexistent-id", "")
	assertErrorCode(t, rec, http.StatusNotFound, wire.ErrSecretNotFound)
}

func TestScenarioConcurrentRetrievalExactlyOneWinner(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.routes()

	id := createSecret(t, h, wire.CreateSecretRequest{Data: "ciphertext", ExpiresIn: 60})

	const n = 30
	var wg sync.WaitGroup
	var mu sync.Mutex
	var successes, notFound int

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			rec := getSecret(h, id, "")
			mu.Lock()
			defer mu.Unlock()
			switch rec.Code {
			case http.StatusOK:
				successes++
			case http.StatusNotFound:
				notFound++
			}
		}()
	}
	wg.Wait()

	if successes != 1 || notFound != n-1 {
		t.Fatalf("successes=%d notFound=%d, want 1/%d", successes, notFound, n-1)
	}
}

func TestScenarioExpiry(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.routes()
	s.cfg.Secret.DefaultTTL = 10 * time.Millisecond

	id := createSecret(t, h, wire.CreateSecretRequest{Data: "ciphertext"})

	time.Sleep(20 * time.Millisecond)
	rec := getSecret(h, id, "")
	assertErrorCode(t, rec, http.StatusNotFound, wire.ErrSecretNotFound)
}

func TestConfigEndpointReportsFeatureFlags(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.routes()

	req := httptest.NewRequest(http.MethodGet, "/config.json", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var resp wire.ConfigResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AnonymousSizeLimit != s.cfg.Secret.AnonymousSizeLimit {
		t.Fatalf("got anonymous_size_limit=%d, want %d", resp.AnonymousSizeLimit, s.cfg.Secret.AnonymousSizeLimit)
	}
}

func TestAdminTokenEndpointsRequireAdminBearer(t *testing.T) {
	s, store := newTestServer(t)
	h := s.routes()

	raw, _ := json.Marshal(wire.CreateTokenRequest{UploadSizeLimit: 4096})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tokens", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assertErrorCode(t, rec, http.StatusUnauthorized, wire.ErrAuthenticationRequired)

	adminToken := "super-secret-admin-token"
	if err := store.Set(req.Context(), "token:admin:"+auth.HashToken(adminToken), []byte("1"), 0); err != nil {
		t.Fatalf("seed admin token: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/tokens", bytes.NewReader(raw))
	req.Header.Set(wire.HeaderAuthorization, wire.AuthorizationBearerPfx+adminToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp wire.CreateTokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected non-empty token")
	}
}

func TestSecretResponsesAreNeverCached(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.routes()

	id := createSecret(t, h, wire.CreateSecretRequest{Data: "ciphertext", ExpiresIn: 60})

	rec := getSecret(h, id, "")
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("retrieval response Cache-Control=%q, want no-store", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	if got := rec2.Header().Get("Cache-Control"); got != "" {
		t.Fatalf("health response Cache-Control=%q, want unset", got)
	}
}

func TestRateLimitAppliesIndependentlyPerKind(t *testing.T) {
	s, _ := newTestServer(t)
	s.cfg.RateLimit.Enabled = true
	s.rateLimiter.Stop()
	s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerSecond: 1, BurstSize: 1, MaxViolations: 100})
	s.middleware = newMiddleware(s.cfg, s.log, s.metrics, s.rateLimiter)
	t.Cleanup(func() { s.rateLimiter.Stop() })
	h := s.routes()

	// Exhaust the retrieve bucket's burst of 1.
	getSecret(h, "nonexistent-1", "")
	rec := getSecret(h, "nonexistent-2", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected retrieve bucket exhausted, got status=%d", rec.Code)
	}

	// The create bucket is independent and should still admit its own
	// first request.
	raw, _ := json.Marshal(wire.CreateSecretRequest{Data: "ciphertext", ExpiresIn: 60})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/secret", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	if rec2.Code == http.StatusTooManyRequests {
		t.Fatalf("create bucket should be unaffected by the retrieve bucket's ban")
	}
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, wantCode wire.ErrorCode) {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("status=%d, want %d (body=%s)", rec.Code, wantStatus, rec.Body.String())
	}
	var resp wire.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v (body=%s)", err, rec.Body.String())
	}
	if resp.Code != wantCode {
		t.Fatalf("code=%q, want %q", resp.Code, wantCode)
	}
}
