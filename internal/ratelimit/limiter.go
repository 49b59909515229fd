// Package ratelimit provides per-IP rate limiting for Hakanai's two
// public admission paths.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration.
type Config struct {
	RequestsPerSecond float64
	BurstSize         int
	CleanupInterval   time.Duration
	BanDuration       time.Duration
	MaxViolations     int
}

// Kind distinguishes the admission path a request is hitting.
// Repeated POST /api/v1/secret is storage-exhaustion spam; repeated
// GET /api/v1/secret/{id} (or GET /s/{id}) is an attempt to guess a
// secret ID or passphrase, which
// is the only brute-force signal a zero-knowledge store has, since it
// never learns whether a wrong guess was "close." Sharing a single
// per-IP bucket between the two would let a retrieval brute-forcer
// exhaust the quota of a legitimate bulk sharer behind the same NAT,
// and vice versa, so each kind gets its own bucket and its own ban.
type Kind string

const (
	KindCreate   Kind = "create"
	KindRetrieve Kind = "retrieve"
)

// bucketKey scopes limiter and ban state to one IP on one admission path.
type bucketKey struct {
	ip   string
	kind Kind
}

// Limiter implements per-IP, per-kind rate limiting with
// ban-after-N-violations.
type Limiter struct {
	config   Config
	limiters map[bucketKey]*ipLimiter
	banned   map[bucketKey]time.Time
	mu       sync.RWMutex
	stopCh   chan struct{}
	doneCh   chan struct{}
}

type ipLimiter struct {
	limiter    *rate.Limiter
	violations int
	lastSeen   time.Time
}

// NewLimiter creates a new rate limiter and starts its cleanup
// goroutine.
func NewLimiter(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 20
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	if cfg.BanDuration <= 0 {
		cfg.BanDuration = 1 * time.Hour
	}
	if cfg.MaxViolations <= 0 {
		cfg.MaxViolations = 5
	}

	l := &Limiter{
		config:   cfg,
		limiters: make(map[bucketKey]*ipLimiter),
		banned:   make(map[bucketKey]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	go l.cleanup()

	return l
}

// banDuration returns how long a violating bucket is banned. A
// retrieval bucket is banned twice as long as a create bucket: a
// create-spammer is rate-limited back to a nuisance, but a retrieval
// brute-forcer that gets its budget back quickly can resume guessing
// secret IDs or passphrases against the same set of targets, so the
// cooldown needs to dominate any plausible retry schedule.
func (l *Limiter) banDuration(kind Kind) time.Duration {
	if kind == KindRetrieve {
		return 2 * l.config.BanDuration
	}
	return l.config.BanDuration
}

// Allow checks if a request of kind from ip is allowed.
func (l *Limiter) Allow(ip string, kind Kind) bool {
	key := bucketKey{ip: ip, kind: kind}

	l.mu.Lock()
	defer l.mu.Unlock()

	if banUntil, banned := l.banned[key]; banned {
		if time.Now().Before(banUntil) {
			return false
		}
		delete(l.banned, key)
	}

	il, exists := l.limiters[key]
	if !exists {
		il = &ipLimiter{
			limiter:  rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.BurstSize),
			lastSeen: time.Now(),
		}
		l.limiters[key] = il
	}
	il.lastSeen = time.Now()

	if !il.limiter.Allow() {
		il.violations++
		if il.violations >= l.config.MaxViolations {
			l.banned[key] = time.Now().Add(l.banDuration(kind))
			delete(l.limiters, key)
		}
		return false
	}

	il.violations = 0
	return true
}

// IsBanned reports whether ip is currently banned on the given kind.
func (l *Limiter) IsBanned(ip string, kind Kind) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	banUntil, banned := l.banned[bucketKey{ip: ip, kind: kind}]
	if !banned {
		return false
	}
	return time.Now().Before(banUntil)
}

// Reset clears limiter and ban state for ip on the given kind.
func (l *Limiter) Reset(ip string, kind Kind) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := bucketKey{ip: ip, kind: kind}
	delete(l.limiters, key)
	delete(l.banned, key)
}

// Stats reports current limiter population, broken down by kind so an
// operator can tell a create-spam wave from a retrieval brute-force
// wave at a glance.
type Stats struct {
	ActiveLimiters map[Kind]int
	BannedIPs      map[Kind]int
}

// Stats returns limiter statistics.
func (l *Limiter) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Stats{ActiveLimiters: make(map[Kind]int), BannedIPs: make(map[Kind]int)}
	for key := range l.limiters {
		s.ActiveLimiters[key.kind]++
	}
	for key := range l.banned {
		s.BannedIPs[key.kind]++
	}
	return s
}

// Stop stops the cleanup goroutine and waits for it to exit.
func (l *Limiter) Stop() {
	close(l.stopCh)
	<-l.doneCh
}

func (l *Limiter) cleanup() {
	defer close(l.doneCh)

	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.doCleanup()
		}
	}
}

func (l *Limiter) doCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, il := range l.limiters {
		if now.Sub(il.lastSeen) > l.config.CleanupInterval*2 {
			delete(l.limiters, key)
		}
	}
	for key, banUntil := range l.banned {
		if now.After(banUntil) {
			delete(l.banned, key)
		}
	}
}
