// Package scheduler reacts to streaming updates and runs a periodic
// priority-bucketed sweep, invoking the evaluator -> scorer -> governor ->
// sink pipeline for each symbol. The bounded-worker-pool /
// batched-parallel-sweep concurrency style is adapted from
// internal/universe.Manager.scanSymbolsConcurrent (semaphore-gated
// goroutines over a fixed batch, waited with sync.WaitGroup).
package scheduler

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dynastyquant/fundingpulse/internal/config"
	"github.com/dynastyquant/fundingpulse/internal/dispatch"
	"github.com/dynastyquant/fundingpulse/internal/exchange"
	"github.com/dynastyquant/fundingpulse/internal/funding"
	"github.com/dynastyquant/fundingpulse/internal/indicators"
	"github.com/dynastyquant/fundingpulse/internal/market"
	"github.com/dynastyquant/fundingpulse/internal/metrics"
	"github.com/dynastyquant/fundingpulse/internal/persistence"
	"github.com/dynastyquant/fundingpulse/internal/rules"
	"github.com/dynastyquant/fundingpulse/internal/scoring"
)

const (
	sweepInterval  = 5 * time.Minute
	batchDelay     = 1 * time.Second
	highBatchSize  = 5
	normalBatchSize = 10
	btcSymbol      = market.Symbol("BTCUSDT")

	highFundingAbs  = 0.03
	highRSIHigh     = 75.0
	highRSILow      = 25.0
	highVelocityAbs = 0.0001

	persistTimeout = 2 * time.Second
)

// Scheduler owns the two concurrent triggers: a streaming reaction on every
// funding/ticker update and a periodic priority-bucketed sweep.
type Scheduler struct {
	store     *market.Store
	stream    *exchange.Stream
	governor  *dispatch.Governor
	persist   *persistence.Store
	cfg       *config.Config
	metrics   *metrics.Registry

	pool chan struct{}
}

// New constructs a Scheduler. persist may be nil (no optional persistence
// configured).
func New(store *market.Store, stream *exchange.Stream, governor *dispatch.Governor, persist *persistence.Store, cfg *config.Config, reg *metrics.Registry) *Scheduler {
	// Bounded worker pool size = 2x the largest configured priority batch,
	// so a burst of simultaneous streaming updates cannot spawn unbounded
	// goroutines.
	poolSize := 2 * int(math.Max(highBatchSize, normalBatchSize))
	return &Scheduler{
		store:    store,
		stream:   stream,
		governor: governor,
		persist:  persist,
		cfg:      cfg,
		metrics:  reg,
		pool:     make(chan struct{}, poolSize),
	}
}

// Run starts the streaming trigger and periodic sweep; it blocks until ctx
// is cancelled, then lets in-flight processSymbol calls drain.
func (s *Scheduler) Run(ctx context.Context, universeSymbols []market.Symbol) {
	go s.stream.Run(ctx)
	for _, sym := range universeSymbols {
		s.stream.Subscribe(string(sym))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.runStreamingTrigger(ctx)
	}()
	go func() {
		defer wg.Done()
		s.runPeriodicSweep(ctx, universeSymbols)
	}()
	wg.Wait()

	// Wait for streaming-triggered processSymbol goroutines to release
	// their pool slots.
	for i := 0; i < cap(s.pool); i++ {
		s.pool <- struct{}{}
	}
}

func (s *Scheduler) runStreamingTrigger(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-s.stream.FundingStream():
			if !ok {
				return
			}
			sym := market.Symbol(f.Symbol)
			s.store.IngestFunding(market.Funding{
				Symbol:          sym,
				RatePercent:     f.RatePercent,
				NextFundingTime: f.NextFundingTime,
				Timestamp:       f.Timestamp,
			})
			s.dispatchProcess(ctx, sym)
		case p, ok := <-s.stream.TickerStream():
			if !ok {
				return
			}
			sym := market.Symbol(p.Symbol)
			s.store.IngestTicker(market.PriceData{
				Symbol:    sym,
				LastPrice: p.LastPrice,
				Timestamp: p.Timestamp,
			})
			s.dispatchProcess(ctx, sym)
		}
	}
}

// dispatchProcess acquires a pool slot and runs processSymbol in its own
// goroutine, so the streaming trigger's receive loop does not wait for the
// pipeline run itself. When every pool slot is taken, the receive loop
// waits here until one is released or ctx is cancelled.
func (s *Scheduler) dispatchProcess(ctx context.Context, sym market.Symbol) {
	select {
	case s.pool <- struct{}{}:
	case <-ctx.Done():
		return
	}
	go func() {
		defer func() { <-s.pool }()
		s.processSymbol(ctx, sym)
	}()
}

func (s *Scheduler) runPeriodicSweep(ctx context.Context, universeSymbols []market.Symbol) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx, universeSymbols)
		}
	}
}

func (s *Scheduler) sweepOnce(ctx context.Context, universeSymbols []market.Symbol) {
	var high, normal []market.Symbol
	for _, sym := range universeSymbols {
		if s.isHighPriority(sym) {
			high = append(high, sym)
		} else {
			normal = append(normal, sym)
		}
	}

	s.runBatches(ctx, high, highBatchSize)
	s.runBatches(ctx, normal, normalBatchSize)
}

func (s *Scheduler) isHighPriority(sym market.Symbol) bool {
	fund := s.store.GetFunding(sym)
	if fund != nil && math.Abs(fund.RatePercent) >= highFundingAbs {
		return true
	}

	series := s.store.GetPriceHistory(sym)
	if rsi := indicators.RSI(series.Closes); rsi != nil && (*rsi >= highRSIHigh || *rsi <= highRSILow) {
		return true
	}

	hx := s.store.GetFundingHistory(sym)
	if math.Abs(funding.Velocity(hx)) > highVelocityAbs {
		return true
	}

	return false
}

func (s *Scheduler) runBatches(ctx context.Context, symbols []market.Symbol, batchSize int) {
	for i := 0; i < len(symbols); i += batchSize {
		end := i + batchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		batch := symbols[i:end]

		var wg sync.WaitGroup
		for _, sym := range batch {
			sym := sym
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.processSymbol(ctx, sym)
			}()
		}
		wg.Wait()

		if end < len(symbols) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(batchDelay):
			}
		}
	}
}

// processSymbol runs the full pipeline for a single symbol: build context
// -> evaluate -> score -> threshold check -> best-effort persistence ->
// governed dispatch. It is idempotent with any other invocation for the
// same symbol because the Dispatch Governor owns suppression.
func (s *Scheduler) processSymbol(ctx context.Context, sym market.Symbol) {
	if reason, suppressed := s.governor.PeekSuppression(ctx, sym); suppressed {
		s.recordOutcome(reason)
		log.Debug().Str("symbol", string(sym)).Str("reason", string(reason)).Msg("skipping evaluation, symbol already suppressed")
		return
	}

	ctxSig, ok := rules.BuildContext(s.store, sym, btcSymbol, s.cfg.EnableBTCContext)
	if !ok {
		return
	}

	sig := rules.Evaluate(ctxSig)
	if sig == nil {
		return
	}

	if s.metrics != nil {
		s.metrics.SignalsEmitted.WithLabelValues(string(sig.Type), string(sig.Bias)).Inc()
	}

	result := scoring.Score(sig, s.cfg.MinScoreThreshold)
	sig.Score = result.Score
	if !result.MeetsThreshold {
		s.recordOutcome(dispatch.ReasonBelowThreshold)
		return
	}

	s.persistBestEffort(sig, ctxSig)

	outcome := s.governor.TryDispatch(ctx, sig)
	if outcome.Sent {
		s.recordOutcome("sent")
		log.Info().Str("correlation_id", sig.CorrelationID).Str("symbol", string(sym)).Float64("score", sig.Score).Msg("signal dispatched")
	} else {
		s.recordOutcome(outcome.Suppressed)
		log.Debug().Str("correlation_id", sig.CorrelationID).Str("symbol", string(sym)).Str("reason", string(outcome.Suppressed)).Msg("signal suppressed")
	}
}

func (s *Scheduler) recordOutcome(outcome interface{}) {
	if s.metrics == nil {
		return
	}
	s.metrics.DispatchOutcomes.WithLabelValues(toString(outcome)).Inc()
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case dispatch.SuppressReason:
		return string(t)
	default:
		return "unknown"
	}
}

// persistBestEffort fires the two write-through persistence hooks in their
// own bounded-timeout goroutines: unavailability or slowness of Postgres
// never blocks or fails dispatch.
func (s *Scheduler) persistBestEffort(sig *rules.Signal, ctxSig *rules.SignalContext) {
	if s.persist == nil {
		return
	}

	if s.persist.Signals != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			defer cancel()
			if err := s.persist.Signals.Insert(ctx, sig); err != nil {
				log.Warn().Err(err).Str("symbol", string(sig.Symbol)).Msg("signal persistence failed")
			}
		}()
	}

	if s.persist.FundingSnapshots != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			defer cancel()
			snap := persistence.FundingSnapshot{
				Symbol:    string(ctxSig.Symbol),
				Funding:   ctxSig.FundingPct,
				Price:     ctxSig.Price,
				Volume24h: ctxSig.Volume24h,
				RSI:       ctxSig.RSI,
				CreatedAt: time.Now(),
			}
			if err := s.persist.FundingSnapshots.Insert(ctx, snap); err != nil {
				log.Warn().Err(err).Str("symbol", string(sig.Symbol)).Msg("funding snapshot persistence failed")
			}
		}()
	}
}
