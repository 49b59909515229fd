// Package logging provides structured logging for the Hakanai server
// and CLI.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	Level  string
	Format string // "json" or "console"
	Output io.Writer
}

// Logger wraps zerolog.Logger with additional context builders. It
// never accepts a raw key, passphrase, or token as a value — only
// hashes, IDs and sizes, per spec.md §8's key non-leakage property.
type Logger struct {
	zerolog.Logger
}

// New creates a new structured logger.
func New(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer
	if cfg.Output != nil {
		output = cfg.Output
	} else {
		output = os.Stdout
	}

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "hakanai").
		Logger()

	return &Logger{Logger: logger}
}

// WithComponent returns a logger with component context.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.With().Str("component", component).Logger()}
}

// secretIDLogPrefix is how much of a secret ID reaches the logs. A
// create and a retrieve of the same secret are usually logged next to
// the requester's IP; truncating the ID keeps log lines useful for
// debugging a single event without leaving a trivially greppable join
// key that lets anyone with log access reconstruct "which IP fetched
// which secret" across the full retention window.
const secretIDLogPrefix = 8

// WithSecret returns a logger with truncated secret-id context. Never
// pass a decryption key or passphrase here.
func (l *Logger) WithSecret(secretID string) *Logger {
	return &Logger{Logger: l.With().Str("secret_id", truncateID(secretID)).Logger()}
}

func truncateID(id string) string {
	if len(id) <= secretIDLogPrefix {
		return id
	}
	return id[:secretIDLogPrefix] + "…"
}

// WithRequest returns a logger with request-id context.
func (l *Logger) WithRequest(requestID string) *Logger {
	return &Logger{Logger: l.With().Str("request_id", requestID).Logger()}
}

// WithIP returns a logger with client-IP context.
func (l *Logger) WithIP(ip string) *Logger {
	return &Logger{Logger: l.With().Str("ip", ip).Logger()}
}

// WithRestriction returns a logger tagged with the restriction
// evaluator that produced a retrieval decision (e.g. "passphrase",
// "ip", "country", "asn") and the decision itself ("allow"/"deny"/
// "disabled"), so a denied-retrieval log line says which gate fired
// without the caller having to string-format it inline at every call
// site in the evaluator chain.
func (l *Logger) WithRestriction(evaluator, decision string) *Logger {
	return &Logger{Logger: l.With().Str("restriction", evaluator).Str("decision", decision).Logger()}
}

// WithUploadSize returns a logger with the admitted upload size, for
// admission-path logging (anonymous vs. authenticated size limits).
func (l *Logger) WithUploadSize(bytes int64) *Logger {
	return &Logger{Logger: l.With().Int64("upload_size", bytes).Logger()}
}
