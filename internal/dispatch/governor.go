// Package dispatch implements the cooldown + global rate-limit governor
// that gates notification delivery.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dynastyquant/fundingpulse/internal/market"
	"github.com/dynastyquant/fundingpulse/internal/rules"
)

// SuppressReason is the reason a signal was not dispatched.
type SuppressReason string

const (
	ReasonCooldown       SuppressReason = "cooldown"
	ReasonRateLimited    SuppressReason = "rate_limited"
	ReasonBelowThreshold SuppressReason = "below_threshold"
	ReasonSinkFailure    SuppressReason = "sink_failure"
)

// Outcome is the result of a single TryDispatch call.
type Outcome struct {
	Sent       bool
	Suppressed SuppressReason
}

// Sink delivers a signal to the outbound notification channel.
type Sink interface {
	Deliver(ctx context.Context, sig *rules.Signal) error
}

// Store is the optional external backing for cooldown/rate-window state,
// following the data/cache.Cache interface shape. Governor degrades to an
// in-process implementation on any Store error and never flaps back.
type Store interface {
	// GetCooldownExpiry returns the stored cooldown expiry epoch ms for
	// symbol, or ok=false if absent.
	GetCooldownExpiry(ctx context.Context, symbol market.Symbol) (expiryMs int64, ok bool, err error)
	// SetCooldown records symbol's cooldown expiry.
	SetCooldown(ctx context.Context, symbol market.Symbol, expiryMs int64) error
	// IncrementRate atomically increments the hourly counter, resetting it
	// first if now has passed the stored reset time, and returns the
	// post-increment count and the window's reset time.
	IncrementRate(ctx context.Context, now time.Time, windowDuration time.Duration) (count int, resetMs int64, err error)
	// PeekRate returns the current count and reset time without mutating
	// state.
	PeekRate(ctx context.Context, now time.Time, windowDuration time.Duration) (count int, resetMs int64, err error)
}

// Governor owns cooldown and rate-window state exclusively. The whole
// "check -> deliver -> record" sequence for a single symbol runs under one
// critical section, so a cooldown/rate decision is atomic with the sink
// call that earns it.
type Governor struct {
	mu sync.Mutex

	cooldownWindow time.Duration
	maxPerHour     int

	sink  Sink
	store Store

	// in-process fallback state, authoritative once failedOver is true or
	// when store was never configured.
	cooldowns  map[market.Symbol]time.Time
	rateCount  int
	rateReset  time.Time
	failedOver bool
}

// NewGovernor constructs a Governor. store may be nil, meaning the
// in-process map+counter is authoritative from the start.
func NewGovernor(cooldownWindow time.Duration, maxPerHour int, sink Sink, store Store) *Governor {
	return &Governor{
		cooldownWindow: cooldownWindow,
		maxPerHour:     maxPerHour,
		sink:           sink,
		store:          store,
		cooldowns:      make(map[market.Symbol]time.Time),
		rateReset:      time.Now().Add(time.Hour),
		failedOver:     store == nil,
	}
}

// PeekSuppression reports whether sym is currently on cooldown or the
// global rate window is exhausted, without mutating any state. Callers use
// this to skip evaluation/scoring entirely for an already-suppressed
// symbol; TryDispatch still re-checks both atomically immediately before
// delivery, so a race between the peek and the eventual dispatch can never
// let a suppressed signal through.
func (g *Governor) PeekSuppression(ctx context.Context, sym market.Symbol) (SuppressReason, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()

	onCooldown, err := g.isOnCooldown(ctx, sym, now)
	if err != nil {
		g.failover(err)
		onCooldown, _ = g.isOnCooldown(ctx, sym, now)
	}
	if onCooldown {
		return ReasonCooldown, true
	}

	limited, err := g.isRateLimited(ctx, now)
	if err != nil {
		g.failover(err)
		limited, _ = g.isRateLimited(ctx, now)
	}
	if limited {
		return ReasonRateLimited, true
	}

	return "", false
}

// TryDispatch runs cooldown check -> rate-limit check -> sink delivery ->
// cooldown set + rate increment (only on success), atomically.
func (g *Governor) TryDispatch(ctx context.Context, sig *rules.Signal) Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()

	onCooldown, err := g.isOnCooldown(ctx, sig.Symbol, now)
	if err != nil {
		g.failover(err)
		onCooldown, _ = g.isOnCooldown(ctx, sig.Symbol, now)
	}
	if onCooldown {
		return Outcome{Suppressed: ReasonCooldown}
	}

	limited, err := g.isRateLimited(ctx, now)
	if err != nil {
		g.failover(err)
		limited, _ = g.isRateLimited(ctx, now)
	}
	if limited {
		return Outcome{Suppressed: ReasonRateLimited}
	}

	if err := g.sink.Deliver(ctx, sig); err != nil {
		log.Warn().Err(err).Str("symbol", string(sig.Symbol)).Msg("sink delivery failed")
		return Outcome{Suppressed: ReasonSinkFailure}
	}

	expiry := now.Add(g.cooldownWindow)
	if err := g.setCooldown(ctx, sig.Symbol, expiry); err != nil {
		g.failover(err)
		_ = g.setCooldown(ctx, sig.Symbol, expiry)
	}
	if err := g.incrementRate(ctx, now); err != nil {
		g.failover(err)
		_ = g.incrementRate(ctx, now)
	}

	return Outcome{Sent: true}
}

func (g *Governor) failover(err error) {
	if g.failedOver {
		return
	}
	g.failedOver = true
	log.Warn().Err(err).Msg("governor store unavailable, failing over to in-process state for remainder of run")
}

func (g *Governor) isOnCooldown(ctx context.Context, sym market.Symbol, now time.Time) (bool, error) {
	if g.failedOver {
		expiry, ok := g.cooldowns[sym]
		return ok && now.Before(expiry), nil
	}
	expiryMs, ok, err := g.store.GetCooldownExpiry(ctx, sym)
	if err != nil {
		return false, err
	}
	return ok && now.UnixMilli() < expiryMs, nil
}

func (g *Governor) setCooldown(ctx context.Context, sym market.Symbol, expiry time.Time) error {
	if g.failedOver {
		g.cooldowns[sym] = expiry
		return nil
	}
	return g.store.SetCooldown(ctx, sym, expiry.UnixMilli())
}

func (g *Governor) isRateLimited(ctx context.Context, now time.Time) (bool, error) {
	if g.failedOver {
		g.rolloverLocked(now)
		return g.rateCount >= g.maxPerHour, nil
	}
	count, _, err := g.store.PeekRate(ctx, now, time.Hour)
	if err != nil {
		return false, err
	}
	return count >= g.maxPerHour, nil
}

func (g *Governor) incrementRate(ctx context.Context, now time.Time) error {
	if g.failedOver {
		g.rolloverLocked(now)
		g.rateCount++
		return nil
	}
	_, _, err := g.store.IncrementRate(ctx, now, time.Hour)
	return err
}

func (g *Governor) rolloverLocked(now time.Time) {
	if !now.Before(g.rateReset) {
		g.rateCount = 0
		g.rateReset = now.Add(time.Hour)
	}
}
