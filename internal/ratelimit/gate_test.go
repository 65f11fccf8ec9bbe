package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/storm-risk-service/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGate_OpenByDefault(t *testing.T) {
	g := NewGate(clockwork.NewFakeClock(), nil, discardLogger())

	assert.False(t, g.IsBlocked(SourceOpenMeteo))
	assert.False(t, g.IsBlocked(SourceUSGS))
	assert.True(t, g.BlockedUntil(SourceUSGS).IsZero())
}

func TestGate_BlockWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g := NewGate(clock, nil, discardLogger())
	start := clock.Now()

	g.Block(context.Background(), SourceOpenMeteo, DefaultBackoff)

	assert.True(t, g.IsBlocked(SourceOpenMeteo))
	assert.False(t, g.IsBlocked(SourceUSGS), "sources are independent")
	assert.True(t, start.Add(30*time.Minute).Equal(g.BlockedUntil(SourceOpenMeteo)))

	clock.Advance(30*time.Minute - time.Second)
	assert.True(t, g.IsBlocked(SourceOpenMeteo))

	clock.Advance(time.Second)
	assert.False(t, g.IsBlocked(SourceOpenMeteo), "callable again once now >= blockedUntil")
	assert.True(t, g.BlockedUntil(SourceOpenMeteo).IsZero())
}

func TestGate_ReblockReplacesWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g := NewGate(clock, nil, discardLogger())
	ctx := context.Background()

	g.Block(ctx, SourceUSGS, 10*time.Minute)
	clock.Advance(5 * time.Minute)
	g.Block(ctx, SourceUSGS, 10*time.Minute)

	clock.Advance(9 * time.Minute)
	assert.True(t, g.IsBlocked(SourceUSGS))
}

func TestGate_PersistsAndRestores(t *testing.T) {
	clock := clockwork.NewFakeClock()
	kv := store.NewMemory()
	ctx := context.Background()

	first := NewGate(clock, kv, discardLogger())
	first.Block(ctx, SourceUSGS, time.Hour)

	raw, ok, err := kv.Read(ctx, "ratelimit:usgs")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, strconv.FormatInt(clock.Now().Add(time.Hour).UnixMilli(), 10), raw)

	second := NewGate(clock, kv, discardLogger())
	require.NoError(t, second.Load(ctx))
	assert.True(t, second.IsBlocked(SourceUSGS))
	assert.False(t, second.IsBlocked(SourceOpenMeteo))
}

func TestGate_LoadIgnoresExpiredAndCorrupt(t *testing.T) {
	clock := clockwork.NewFakeClock()
	kv := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, kv.Write(ctx, "ratelimit:usgs", strconv.FormatInt(clock.Now().Add(-time.Minute).UnixMilli(), 10)))
	require.NoError(t, kv.Write(ctx, "ratelimit:open-meteo", "garbage"))

	g := NewGate(clock, kv, discardLogger())
	require.NoError(t, g.Load(ctx))

	assert.False(t, g.IsBlocked(SourceUSGS))
	assert.False(t, g.IsBlocked(SourceOpenMeteo))
}

func TestGate_ConcurrentAccess(t *testing.T) {
	g := NewGate(clockwork.NewRealClock(), store.NewMemory(), discardLogger())
	ctx := context.Background()
	done := make(chan struct{})

	for range 8 {
		go func() {
			defer func() { done <- struct{}{} }()
			for range 100 {
				g.Block(ctx, SourceOpenMeteo, time.Minute)
				_ = g.IsBlocked(SourceOpenMeteo)
				_ = g.BlockedUntil(SourceUSGS)
			}
		}()
	}
	for range 8 {
		<-done
	}
	assert.True(t, g.IsBlocked(SourceOpenMeteo))
}
