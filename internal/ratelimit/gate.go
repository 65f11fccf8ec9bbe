// Package ratelimit tracks upstream sources that answered with HTTP 429 and
// keeps callers away from them until their backoff window has passed.
package ratelimit

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/couchcryptid/storm-risk-service/internal/store"
	"github.com/jonboulle/clockwork"
)

// Source identifies an upstream provider. Endpoints served by the same
// provider share one Source.
type Source string

const (
	// SourceOpenMeteo covers both the forecast and geocoding APIs.
	SourceOpenMeteo Source = "open-meteo"
	SourceUSGS      Source = "usgs"
)

// Sources lists every gated upstream.
var Sources = []Source{SourceOpenMeteo, SourceUSGS}

// DefaultBackoff is how long a source stays blocked after a 429.
const DefaultBackoff = 30 * time.Minute

const keyPrefix = "ratelimit:"

// Gate is safe for concurrent use. Blocks only ever extend or replace the
// previous window; there is no way to clear one early.
type Gate struct {
	mu      sync.Mutex
	blocked map[Source]time.Time
	clock   clockwork.Clock
	kv      store.KV // optional
	logger  *slog.Logger
}

// NewGate returns an open gate. When kv is non-nil every Block is persisted so
// that Load can restore it after a restart.
func NewGate(clock clockwork.Clock, kv store.KV, logger *slog.Logger) *Gate {
	return &Gate{
		blocked: make(map[Source]time.Time),
		clock:   clock,
		kv:      kv,
		logger:  logger,
	}
}

// IsBlocked reports whether calls to source must be skipped right now.
func (g *Gate) IsBlocked(source Source) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.blocked[source]
	return ok && g.clock.Now().Before(until)
}

// BlockedUntil returns the end of the current window, or the zero time.
func (g *Gate) BlockedUntil(source Source) time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.blocked[source]
	if !ok || !g.clock.Now().Before(until) {
		return time.Time{}
	}
	return until
}

// Block closes the gate for source for d from now.
func (g *Gate) Block(ctx context.Context, source Source, d time.Duration) {
	until := g.clock.Now().Add(d)

	g.mu.Lock()
	g.blocked[source] = until
	g.mu.Unlock()

	g.logger.Warn("upstream rate limited", "source", source, "blocked_until", until)

	if g.kv == nil {
		return
	}
	if err := g.kv.Write(ctx, keyPrefix+string(source), strconv.FormatInt(until.UnixMilli(), 10)); err != nil {
		g.logger.Warn("persist rate limit failed", "source", source, "error", err)
	}
}

// Load restores persisted windows for every known source. Windows that have
// already passed are ignored.
func (g *Gate) Load(ctx context.Context) error {
	if g.kv == nil {
		return nil
	}
	now := g.clock.Now()
	for _, source := range Sources {
		raw, ok, err := g.kv.Read(ctx, keyPrefix+string(source))
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			g.logger.Warn("ignoring corrupt rate limit entry", "source", source, "value", raw)
			continue
		}
		until := time.UnixMilli(ms)
		if !now.Before(until) {
			continue
		}

		g.mu.Lock()
		g.blocked[source] = until
		g.mu.Unlock()
		g.logger.Info("restored rate limit", "source", source, "blocked_until", until)
	}
	return nil
}
