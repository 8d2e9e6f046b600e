// Package quotes acquires daily price series by trying registered sources in
// a fixed per-market order until one yields usable rows.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"MarketHarvest/internal/collector"
	"MarketHarvest/internal/metrics"
	"MarketHarvest/internal/model"
	"MarketHarvest/internal/normalizer"
	"MarketHarvest/internal/recorder"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultMaxRetries = 3
	defaultMinDelay   = 1 * time.Second
	defaultMaxDelay   = 3 * time.Second

	defaultFlightTimeout = 2 * time.Minute
)

// Fetcher implements sequential short-circuit fallback across sources.
type Fetcher struct {
	registry   *Registry
	guards     map[string]*guard
	maxRetries int
	minDelay   time.Duration
	maxDelay   time.Duration
	breaker    BreakerSettings
	rate       RateSettings
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time

	cache         Cache
	ttls          map[Purpose]time.Duration
	group         singleflight.Group
	flightTimeout time.Duration

	logger   *zap.Logger
	metrics  *metrics.Metrics
	recorder recorder.Recorder
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithMaxRetries sets the attempts per source.
func WithMaxRetries(n int) Option {
	return func(f *Fetcher) { f.maxRetries = n }
}

// WithRetryDelay sets the bounds of the random wait between attempts.
func WithRetryDelay(lo, hi time.Duration) Option {
	return func(f *Fetcher) { f.minDelay, f.maxDelay = lo, hi }
}

// WithSleep replaces the wait between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// WithBreaker configures the per-source circuit breaker.
func WithBreaker(s BreakerSettings) Option {
	return func(f *Fetcher) { f.breaker = s }
}

// WithRateLimit configures the per-source request limiter.
func WithRateLimit(s RateSettings) Option {
	return func(f *Fetcher) { f.rate = s }
}

// WithCache enables GetQuotesCached. Missing purposes fall back to DefaultTTLs.
func WithCache(c Cache, ttls map[Purpose]time.Duration) Option {
	return func(f *Fetcher) {
		f.cache = c
		for p, d := range ttls {
			f.ttls[p] = d
		}
	}
}

// WithFlightTimeout bounds a shared cached lookup, which runs detached from
// the callers' contexts.
func WithFlightTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.flightTimeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

func WithRecorder(r recorder.Recorder) Option {
	return func(f *Fetcher) { f.recorder = r }
}

// NewFetcher creates a Fetcher over registry.
func NewFetcher(registry *Registry, opts ...Option) *Fetcher {
	f := &Fetcher{
		registry:   registry,
		maxRetries: defaultMaxRetries,
		minDelay:   defaultMinDelay,
		maxDelay:   defaultMaxDelay,
		breaker:    BreakerSettings{ConsecutiveFailures: 10, OpenTimeout: time.Minute},
		sleep:      sleepCtx,
		now:        time.Now,
		ttls:       DefaultTTLs(),

		flightTimeout: defaultFlightTimeout,
		logger:     zap.NewNop(),
		recorder:   recorder.NewNoopRecorder(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.maxRetries < 1 {
		f.maxRetries = 1
	}
	if f.maxDelay < f.minDelay {
		f.maxDelay = f.minDelay
	}
	if f.flightTimeout <= 0 {
		f.flightTimeout = defaultFlightTimeout
	}
	f.logger = f.logger.Named("quotes")

	f.guards = make(map[string]*guard, len(registry.byName))
	for name := range registry.byName {
		f.guards[name] = newGuard(name, f.breaker, f.rate, f.logger)
	}
	return f
}

// GetQuotes returns the first usable series in priority order, clipped to
// rng. When every source is exhausted it returns an empty series and a nil
// error. Errors are reserved for an invalid market and cancellation.
func (f *Fetcher) GetQuotes(ctx context.Context, code string, market model.Market, rng model.DateRange) (*model.PriceSeries, error) {
	if !market.Valid() {
		return nil, fmt.Errorf("market %q: %w", market, ErrUnknownMarket)
	}
	started := f.now()
	log := f.logger.With(zap.String("code", code), zap.String("market", string(market)))

	attempts := 0
	for _, reg := range f.registry.sources(market) {
		recs, n := f.trySource(ctx, log, reg.src, code, market, rng)
		attempts += n
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			continue
		}

		series := &model.PriceSeries{
			Code:      code,
			Market:    market,
			Range:     rng,
			Source:    reg.src.Name(),
			Records:   recs,
			FetchedAt: f.now(),
		}
		log.Info("quotes fetched", zap.String("source", series.Source), zap.Int("rows", len(recs)), zap.Int("attempts", attempts))
		f.metrics.QuoteRequest(string(market), "ok")
		f.record(series, attempts, started)
		return series, nil
	}

	log.Warn("no data available from any source", zap.Int("attempts", attempts))
	f.metrics.QuoteRequest(string(market), "empty")
	empty := model.EmptySeries(code, market, rng)
	empty.FetchedAt = f.now()
	f.record(empty, attempts, started)
	return empty, nil
}

// trySource makes up to maxRetries attempts against one source. It returns
// the records of the first usable attempt and the number of attempts made.
func (f *Fetcher) trySource(ctx context.Context, log *zap.Logger, src collector.Source, code string, market model.Market, rng model.DateRange) ([]model.PriceRecord, int) {
	g := f.guards[src.Name()]
	log = log.With(zap.String("source", src.Name()))

	attempts := 0
	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		if attempt > 1 {
			if err := f.sleep(ctx, f.jitter()); err != nil {
				return nil, attempts
			}
		}
		attempts++
		recs, err := g.do(ctx, func() ([]model.PriceRecord, error) {
			return f.fetchOnce(ctx, log, src, code, market, rng)
		})
		switch {
		case err == nil:
			f.metrics.QuoteAttempt(src.Name(), "ok")
			return recs, attempts
		case errors.Is(err, ErrSourceUnavailable):
			f.metrics.QuoteAttempt(src.Name(), "skipped")
			log.Warn("source breaker open, skipping")
			return nil, attempts
		case ctx.Err() != nil:
			return nil, attempts
		default:
			f.metrics.QuoteAttempt(src.Name(), "error")
			log.Warn("source attempt failed", zap.Int("attempt", attempt), zap.Int("max", f.maxRetries), zap.Error(err))
		}
	}
	return nil, attempts
}

func (f *Fetcher) fetchOnce(ctx context.Context, log *zap.Logger, src collector.Source, code string, market model.Market, rng model.DateRange) ([]model.PriceRecord, error) {
	payload, err := src.Fetch(ctx, code, market, rng)
	if err != nil {
		return nil, err
	}
	if payload.Empty() {
		return nil, collector.ErrNoData
	}
	recs, rep := normalizer.Normalize(payload)
	if rep.Dropped > 0 || rep.Duplicates > 0 {
		log.Debug("normalized with skipped rows",
			zap.Int("rows", rep.Rows), zap.Int("dropped", rep.Dropped), zap.Int("duplicates", rep.Duplicates))
	}
	recs = clip(recs, rng)
	if len(recs) == 0 {
		return nil, fmt.Errorf("no rows in range: %w", collector.ErrNoData)
	}
	return recs, nil
}

// GetQuotesCached is GetQuotes behind the cache keyed by (code, market,
// purpose). Concurrent identical lookups share one upstream call, which
// outlives any single caller up to the flight timeout; each caller stops
// waiting when its own ctx ends. Empty series are not cached.
func (f *Fetcher) GetQuotesCached(ctx context.Context, code string, market model.Market, rng model.DateRange, purpose Purpose) (*model.PriceSeries, error) {
	if f.cache == nil {
		return f.GetQuotes(ctx, code, market, rng)
	}
	key := CacheKey(code, market, purpose)
	if s, ok := f.cache.Get(ctx, key); ok {
		f.metrics.CacheLookup(true)
		return s, nil
	}
	f.metrics.CacheLookup(false)

	ch := f.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.flightTimeout)
		defer cancel()
		s, err := f.GetQuotes(fctx, code, market, rng)
		if err != nil {
			if fctx.Err() == nil {
				return nil, err
			}
			f.logger.Warn("shared quote lookup timed out", zap.String("key", key), zap.Duration("timeout", f.flightTimeout))
			return model.EmptySeries(code, market, rng), nil
		}
		if s.Available() {
			if err := f.cache.Set(fctx, key, s, f.ttl(purpose)); err != nil {
				f.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
			}
		}
		return s, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		s := res.Val.(*model.PriceSeries)
		if res.Shared {
			s = s.Clone()
		}
		return s, nil
	}
}

func (f *Fetcher) ttl(p Purpose) time.Duration {
	if d, ok := f.ttls[p]; ok {
		return d
	}
	return MinTTL
}

func (f *Fetcher) jitter() time.Duration {
	span := f.maxDelay - f.minDelay
	if span <= 0 {
		return f.minDelay
	}
	return f.minDelay + rand.N(span+1)
}

func (f *Fetcher) record(s *model.PriceSeries, attempts int, started time.Time) {
	outcome := "ok"
	if !s.Available() {
		outcome = "empty"
	}
	if err := f.recorder.RecordQuoteFetch(&recorder.QuoteFetchEvent{
		Code:     s.Code,
		Market:   string(s.Market),
		Source:   s.Source,
		Attempts: attempts,
		Rows:     len(s.Records),
		Outcome:  outcome,
		Duration: f.now().Sub(started),
	}); err != nil {
		f.logger.Error("record quote fetch", zap.Error(err))
	}
}

// clip keeps the records inside rng. Input order is preserved.
func clip(recs []model.PriceRecord, rng model.DateRange) []model.PriceRecord {
	if rng.Start.IsZero() && rng.End.IsZero() {
		return recs
	}
	out := recs[:0:0]
	for _, r := range recs {
		if rng.Contains(r.Date) {
			out = append(out, r)
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
