// Package logging builds the service logger.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger. format is "json" (default) or "console".
func New(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return nil, fmt.Errorf("logging: level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	switch strings.ToLower(format) {
	case "", "json":
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("logging: unknown format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// DefaultThrottleWindow is how long an identical error stays suppressed.
const DefaultThrottleWindow = time.Minute

// Throttled logs a repeated error at most once per window.
type Throttled struct {
	logger *zap.Logger
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewThrottled wraps logger. A non-positive window uses DefaultThrottleWindow.
func NewThrottled(logger *zap.Logger, window time.Duration) *Throttled {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = DefaultThrottleWindow
	}
	return &Throttled{
		logger: logger,
		window: window,
		now:    time.Now,
		last:   make(map[string]time.Time),
	}
}

// Error logs msg with err unless the same pair was logged within the window.
// It reports whether the entry was written.
func (t *Throttled) Error(msg string, err error, fields ...zap.Field) bool {
	key := msg
	if err != nil {
		key += ": " + err.Error()
	}

	t.mu.Lock()
	now := t.now()
	if at, ok := t.last[key]; ok && now.Sub(at) < t.window {
		t.mu.Unlock()
		return false
	}
	t.last[key] = now
	for k, at := range t.last {
		if now.Sub(at) >= t.window {
			delete(t.last, k)
		}
	}
	t.mu.Unlock()

	t.logger.Error(msg, append(fields, zap.Error(err))...)
	return true
}

// Logger returns the wrapped logger.
func (t *Throttled) Logger() *zap.Logger {
	return t.logger
}
