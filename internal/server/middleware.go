package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/cors"

	"github.com/hakanai/hakanai/internal/logging"
	"github.com/hakanai/hakanai/internal/metrics"
	"github.com/hakanai/hakanai/internal/ratelimit"
)

// middleware bundles the cross-cutting HTTP concerns (security
// headers, CORS, rate limiting, logging, metrics, panic recovery)
// applied to every request ahead of the chi routing tree.
type middleware struct {
	log         *logging.Logger
	metrics     *metrics.Metrics
	rateLimiter *ratelimit.Limiter
	cfg         *Config
}

func newMiddleware(cfg *Config, log *logging.Logger, m *metrics.Metrics, rl *ratelimit.Limiter) *middleware {
	return &middleware{log: log.WithComponent("middleware"), metrics: m, rateLimiter: rl, cfg: cfg}
}

// chain applies every middleware in order; last applied runs first.
func (m *middleware) chain(h http.Handler) http.Handler {
	h = m.recovery(h)
	h = m.logging(h)
	h = m.instrument(h)
	if m.cfg.RateLimit.Enabled {
		h = m.rateLimit(h)
	}
	h = m.cors(h)
	h = m.security(h)
	return h
}

// secretBearingPath reports whether r's response body can carry
// secret ciphertext or the HTML page that embeds a share link, versus
// static/operational responses (config, health, metrics) that never do.
func secretBearingPath(r *http.Request) bool {
	p := r.URL.Path
	return strings.HasPrefix(p, "/api/v1/secret") || strings.HasPrefix(p, "/s/")
}

// requestKind classifies a request into the admission path it counts
// against for rate limiting: POST /api/v1/secret allocates storage,
// while GET /api/v1/secret/{id} and GET /s/{id} both spend a guess at
// an existing secret ID. Anything else (tokens, config, health) rides
// the create bucket, since it carries no brute-force signal worth a
// harsher ban.
func requestKind(r *http.Request) ratelimit.Kind {
	p := r.URL.Path
	if r.Method == http.MethodGet && (strings.HasPrefix(p, "/api/v1/secret/") || strings.HasPrefix(p, "/s/")) {
		return ratelimit.KindRetrieve
	}
	return ratelimit.KindCreate
}

// secretIDFromPath pulls the trailing {id} segment off a
// /api/v1/secret/{id} or /s/{id} path. This middleware wraps the chi
// router from the outside, so chi's own route-param context isn't yet
// attached to the request here; the ID has to be read off the raw path.
func secretIDFromPath(path string) string {
	for _, prefix := range []string{"/api/v1/secret/", "/s/"} {
		if strings.HasPrefix(path, prefix) {
			return strings.TrimPrefix(path, prefix)
		}
	}
	return ""
}

func (m *middleware) security(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.Header().Del("Server")
		// Ciphertext and the share page must never be cached by a
		// shared proxy or CDN: a cached response would keep serving a
		// secret after the server has deleted it on first retrieval,
		// defeating the one-time guarantee.
		if secretBearingPath(r) {
			w.Header().Set("Cache-Control", "no-store")
		}
		next.ServeHTTP(w, r)
	})
}

// cors allows any origin to call the API: the share URL's key lives in
// the fragment, never sent to the server, so there is no session/cookie
// boundary for CORS to protect here.
func (m *middleware) cors(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-Id", "X-Secret-Passphrase"},
		MaxAge:         300,
	})(next)
}

func (m *middleware) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r, m.cfg.Server.TrustProxyHops)
		kind := requestKind(r)

		if !m.rateLimiter.Allow(ip, kind) {
			m.log.Warn().Str("ip", ip).Str("kind", string(kind)).Msg("rate limit exceeded")
			if m.metrics != nil {
				m.metrics.RateLimitHits.WithLabelValues(string(kind)).Inc()
			}
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *middleware) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		log := m.log.WithRequest(r.Header.Get("X-Request-Id")).WithIP(clientIP(r, m.cfg.Server.TrustProxyHops))
		if id := secretIDFromPath(r.URL.Path); id != "" {
			log = log.WithSecret(id)
		}

		if r.URL.Path == "/health" || r.URL.Path == "/ready" {
			log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Int("status", wrapped.status).Dur("duration", duration).Msg("request completed")
			return
		}
		event := log.Info()
		if r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/v1/secret") && r.ContentLength > 0 {
			event = log.WithUploadSize(r.ContentLength).Info()
		}
		event.Str("method", r.Method).Str("path", r.URL.Path).Int("status", wrapped.status).Int64("bytes", wrapped.written).Dur("duration", duration).Msg("request completed")
	})
}

func (m *middleware) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		if m.metrics == nil {
			return
		}
		m.metrics.RecordHTTPRequest(r.Method, r.URL.Path, http.StatusText(wrapped.status), time.Since(start).Seconds())
	})
}

func (m *middleware) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				base := m.log
				if id := secretIDFromPath(r.URL.Path); id != "" {
					base = m.log.WithSecret(id)
				}
				base.Error().Interface("error", rec).Str("path", r.URL.Path).Msg("panic recovered")
				if m.metrics != nil {
					m.metrics.PanicsTotal.Inc()
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status and bytes
// written for logging and metrics.
type responseWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}
