// Command hakanai-server runs the Hakanai zero-knowledge one-time
// secret sharing API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hakanai/hakanai/internal/logging"
	"github.com/hakanai/hakanai/internal/metrics"
	"github.com/hakanai/hakanai/internal/server"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// statsInterval is how often the running server logs a rate limiter
// snapshot, separate from per-request metrics scraped by Prometheus:
// an operator tailing logs can see a create/retrieve abuse wave start
// without needing a metrics dashboard open.
const statsInterval = 5 * time.Minute

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information")
	flag.Parse()

	if *showVersion {
		fmt.Println("hakanai-server")
		fmt.Println("Version:", version)
		fmt.Println("Build Time:", buildTime)
		fmt.Println("Git Commit:", gitCommit)
		os.Exit(0)
	}

	log := logging.New(logging.Config{
		Level:  getEnvOrDefault("HAKANAI_LOG_LEVEL", "info"),
		Format: getEnvOrDefault("HAKANAI_LOG_FORMAT", "json"),
	})

	log.Info().
		Str("version", version).
		Str("build_time", buildTime).
		Str("git_commit", gitCommit).
		Msg("starting hakanai-server")

	cfg := loadConfig(*configPath, log)
	warnOnRiskyConfig(cfg, log)

	m := metrics.New()

	srv, err := server.New(cfg, log, m)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	statsDone := make(chan struct{})
	go runStatsLogger(srv, log, statsDone)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	close(statsDone)

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}

	log.Info().Msg("stopped")
}

func loadConfig(configPath string, log *logging.Logger) *server.Config {
	var cfg *server.Config
	var err error

	switch {
	case configPath != "":
		cfg, err = server.LoadConfig(configPath)
	case os.Getenv("HAKANAI_CONFIG") != "":
		cfg, err = server.LoadConfig(os.Getenv("HAKANAI_CONFIG"))
	default:
		cfg = server.DefaultConfig()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	cfg.ApplyEnvironment()

	log.Info().
		Str("listen_addr", cfg.Server.ListenAddr).
		Dur("default_ttl", cfg.Secret.DefaultTTL).
		Dur("max_ttl", cfg.Secret.MaxTTL).
		Int64("anonymous_size_limit", cfg.Secret.AnonymousSizeLimit).
		Bool("country_restrictions", cfg.Restrict.EnableCountryRestrictions).
		Bool("asn_restrictions", cfg.Restrict.EnableASNRestrictions).
		Msg("configuration loaded")

	return cfg
}

// warnOnRiskyConfig flags MaxTTL settings long enough to widen the
// brute-force window against an unclaimed secret sitting in the KV
// store (see DESIGN.md's note on offline brute-forceability). This
// doesn't block startup — a long TTL may be a deliberate operator
// choice — it just makes sure the tradeoff is visible in the logs.
func warnOnRiskyConfig(cfg *server.Config, log *logging.Logger) {
	const longTTLThreshold = 30 * 24 * time.Hour
	if cfg.Secret.MaxTTL > longTTLThreshold {
		log.Warn().
			Dur("max_ttl", cfg.Secret.MaxTTL).
			Msg("configured max_ttl exceeds 30 days; unclaimed secrets sit in the KV store longer, widening the brute-force window")
	}
}

// runStatsLogger periodically logs the rate limiter's create/retrieve
// bucket population until done is closed, so sustained abuse on
// either admission path shows up in logs even without a metrics
// scrape in between.
func runStatsLogger(srv *server.Server, log *logging.Logger, done <-chan struct{}) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			stats := srv.RateLimitStats()
			log.Info().
				Interface("active_limiters", stats.ActiveLimiters).
				Interface("banned_ips", stats.BannedIPs).
				Msg("rate limiter snapshot")
		}
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
