// Package news ingests the news feed into deduplicated Daily News Files.
package news

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"MarketHarvest/internal/metrics"
	"MarketHarvest/internal/model"
	"MarketHarvest/internal/recorder"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Defaults for Ingestor settings.
const (
	DefaultMaxFailures = 5
	DefaultMinInterval = 30 * time.Second
	DefaultAttempts    = 3
	DefaultRecentDays  = 3
)

// Status is a snapshot of the ingestor's counters.
type Status struct {
	ConsecutiveFailures int
	MaxFailures         int
	LastSuccess         time.Time
	HashCount           int
	MaxHashes           int
	LastCycle           CycleResult
}

// CircuitOpen reports whether cycles are being refused.
func (s Status) CircuitOpen() bool {
	return s.ConsecutiveFailures >= s.MaxFailures
}

// CycleResult summarizes one FetchAndSave call.
type CycleResult struct {
	RunID      string
	At         time.Time
	Fetched    int
	Saved      int
	Duplicates int
	Attempts   int
	Outcome    string
	Err        string
}

// Ingestor fetches the feed, drops entries whose content hash is known,
// and merges the rest into the current day's file. runMu serializes cycles;
// mu guards the counters and the hash cache and is never held across a
// sleep or an upstream call, so Status stays responsive during backoff.
type Ingestor struct {
	feed   Feed
	store  *Store
	hashes *HashCache

	maxFailures   int
	minInterval   time.Duration
	attempts      int
	backoff       func(attempt int) time.Duration
	recentDays    int
	sleep         func(ctx context.Context, d time.Duration) error
	now           func() time.Time
	onCircuitOpen func(failures int)

	logger   *zap.Logger
	metrics  *metrics.Metrics
	recorder recorder.Recorder

	runMu sync.Mutex

	mu                  sync.Mutex
	consecutiveFailures int
	lastSuccess         time.Time
	lastCycle           CycleResult
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

func WithMaxFailures(n int) IngestorOption {
	return func(i *Ingestor) { i.maxFailures = n }
}

func WithMinInterval(d time.Duration) IngestorOption {
	return func(i *Ingestor) { i.minInterval = d }
}

// WithAttempts sets upstream attempts per cycle.
func WithAttempts(n int) IngestorOption {
	return func(i *Ingestor) { i.attempts = n }
}

// WithBackoff sets the wait after failed attempt n (0-based).
func WithBackoff(fn func(attempt int) time.Duration) IngestorOption {
	return func(i *Ingestor) { i.backoff = fn }
}

// WithRecentDays sets how many daily files a hash reload scans.
func WithRecentDays(n int) IngestorOption {
	return func(i *Ingestor) { i.recentDays = n }
}

func WithSleep(fn func(ctx context.Context, d time.Duration) error) IngestorOption {
	return func(i *Ingestor) { i.sleep = fn }
}

func WithClock(now func() time.Time) IngestorOption {
	return func(i *Ingestor) { i.now = now }
}

// WithCircuitOpenHook is called once each time the failure threshold is reached.
func WithCircuitOpenHook(fn func(failures int)) IngestorOption {
	return func(i *Ingestor) { i.onCircuitOpen = fn }
}

func WithLogger(l *zap.Logger) IngestorOption {
	return func(i *Ingestor) { i.logger = l }
}

func WithMetrics(m *metrics.Metrics) IngestorOption {
	return func(i *Ingestor) { i.metrics = m }
}

func WithRecorder(r recorder.Recorder) IngestorOption {
	return func(i *Ingestor) { i.recorder = r }
}

// LinearBackoff waits (attempt+1)*10s.
func LinearBackoff(attempt int) time.Duration {
	return time.Duration(attempt+1) * 10 * time.Second
}

// NewIngestor creates an Ingestor. The hash cache is expected to be loaded
// by the caller.
func NewIngestor(feed Feed, store *Store, hashes *HashCache, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		feed:        feed,
		store:       store,
		hashes:      hashes,
		maxFailures: DefaultMaxFailures,
		minInterval: DefaultMinInterval,
		attempts:    DefaultAttempts,
		backoff:     LinearBackoff,
		recentDays:  DefaultRecentDays,
		sleep:       sleepCtx,
		now:         time.Now,
		logger:      zap.NewNop(),
		recorder:    recorder.NewNoopRecorder(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.attempts < 1 {
		i.attempts = 1
	}
	i.logger = i.logger.Named("news")
	i.metrics.HashCacheSize(hashes.Len())
	return i
}

// errEmptyFeed marks an upstream batch with no entries at all.
var errEmptyFeed = errors.New("feed returned no entries")

// FetchAndSave runs one ingestion cycle and reports success. It returns
// false immediately while the failure circuit is open.
func (i *Ingestor) FetchAndSave(ctx context.Context) bool {
	i.runMu.Lock()
	defer i.runMu.Unlock()

	res := CycleResult{RunID: uuid.NewString(), At: i.now()}
	log := i.logger.With(zap.String("run_id", res.RunID))
	started := res.At

	i.mu.Lock()
	failures, lastSuccess := i.consecutiveFailures, i.lastSuccess
	i.mu.Unlock()

	if failures >= i.maxFailures {
		log.Warn("news circuit open, skipping fetch",
			zap.Int("failures", failures), zap.Int("max", i.maxFailures))
		res.Outcome = "circuit_open"
		i.finish(log, res, started)
		return false
	}

	if !lastSuccess.IsZero() {
		if wait := i.minInterval - i.now().Sub(lastSuccess); wait > 0 {
			log.Debug("waiting for minimum interval", zap.Duration("wait", wait))
			if err := i.sleep(ctx, wait); err != nil {
				res.Outcome = "cancelled"
				res.Err = err.Error()
				i.finish(log, res, started)
				return false
			}
		}
	}

	var lastErr error
	for attempt := 0; attempt < i.attempts; attempt++ {
		res.Attempts++
		err := i.cycle(ctx, log, &res)
		if err == nil {
			i.mu.Lock()
			i.consecutiveFailures = 0
			i.lastSuccess = i.now()
			i.mu.Unlock()
			res.Outcome = "ok"
			res.Err = ""
			i.finish(log, res, started)
			return true
		}
		lastErr = err
		log.Warn("news fetch attempt failed",
			zap.Int("attempt", attempt+1), zap.Int("max", i.attempts), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
		if attempt < i.attempts-1 {
			if err := i.sleep(ctx, i.backoff(attempt)); err != nil {
				break
			}
		}
	}

	if ctx.Err() != nil {
		res.Outcome = "cancelled"
		res.Err = ctx.Err().Error()
		i.finish(log, res, started)
		return false
	}

	i.mu.Lock()
	i.consecutiveFailures++
	failures = i.consecutiveFailures
	i.mu.Unlock()

	res.Outcome = "failed"
	if lastErr != nil {
		res.Err = lastErr.Error()
	}
	log.Error("news cycle failed",
		zap.Int("failures", failures), zap.Int("max", i.maxFailures), zap.Error(lastErr))
	if failures == i.maxFailures && i.onCircuitOpen != nil {
		i.onCircuitOpen(failures)
	}
	i.finish(log, res, started)
	return false
}

// cycle performs one upstream call and persists new items. An empty batch
// is an error. Hashes are committed only after the file write succeeds.
func (i *Ingestor) cycle(ctx context.Context, log *zap.Logger, res *CycleResult) error {
	entries, err := i.feed.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("%s fetch: %w", i.feed.Name(), err)
	}
	res.Fetched = len(entries)
	res.Saved, res.Duplicates = 0, 0
	if len(entries) == 0 {
		return fmt.Errorf("%s: %w", i.feed.Name(), errEmptyFeed)
	}

	now := i.now().In(i.store.Location())
	fetchTime := now.Format(FetchTimeLayout)
	batch := make(map[string]struct{}, len(entries))
	fresh := make([]model.NewsItem, 0, len(entries))
	i.mu.Lock()
	for _, e := range entries {
		if strings.TrimSpace(e.Content) == "" {
			continue
		}
		h := ContentHash(e.Content)
		if _, seen := batch[h]; seen || i.hashes.Has(h) {
			res.Duplicates++
			continue
		}
		batch[h] = struct{}{}
		fresh = append(fresh, model.NewsItem{
			Title:     e.Title,
			Content:   e.Content,
			Date:      e.Date,
			Time:      e.Time,
			Datetime:  strings.TrimSpace(e.Date + " " + e.Time),
			FetchTime: fetchTime,
			Hash:      h,
		})
	}
	i.mu.Unlock()

	if len(fresh) == 0 {
		log.Info("no new news", zap.Int("fetched", res.Fetched), zap.Int("duplicates", res.Duplicates))
		return nil
	}

	existing, err := i.store.Load(now)
	if err != nil {
		if !errors.Is(err, ErrCorruptFile) {
			return err
		}
		log.Warn("existing news file unreadable, overwriting", zap.Error(err))
		existing = nil
	}
	merged := make([]model.NewsItem, 0, len(existing)+len(fresh))
	merged = append(merged, existing...)
	merged = append(merged, fresh...)
	SortNewestFirst(merged)

	if err := i.store.Save(now, merged); err != nil {
		return err
	}
	res.Saved = len(fresh)
	log.Info("news saved",
		zap.Int("fetched", res.Fetched), zap.Int("saved", res.Saved),
		zap.Int("duplicates", res.Duplicates), zap.Int("file_total", len(merged)))

	i.mu.Lock()
	defer i.mu.Unlock()
	for _, it := range fresh {
		i.hashes.Add(it.Hash)
	}
	if i.hashes.Exceeded() {
		n, err := i.hashes.Reload(i.recentDays)
		log.Info("hash cache rebuilt", zap.Int("size", n), zap.Int("max", i.hashes.Max()))
		if err != nil {
			log.Warn("hash cache rebuild skipped files", zap.Error(err))
		}
	}
	return nil
}

func (i *Ingestor) finish(log *zap.Logger, res CycleResult, started time.Time) {
	i.mu.Lock()
	i.lastCycle = res
	failures, size := i.consecutiveFailures, i.hashes.Len()
	i.mu.Unlock()

	i.metrics.NewsCycle(res.Outcome)
	i.metrics.NewsItems(res.Saved, res.Duplicates)
	i.metrics.NewsFailures(failures)
	i.metrics.HashCacheSize(size)
	if err := i.recorder.RecordNewsCycle(&recorder.NewsCycleEvent{
		RunID:      res.RunID,
		At:         res.At,
		Fetched:    res.Fetched,
		Saved:      res.Saved,
		Duplicates: res.Duplicates,
		Attempts:   res.Attempts,
		Outcome:    res.Outcome,
		Error:      res.Err,
		Duration:   i.now().Sub(started),
	}); err != nil {
		log.Error("record news cycle", zap.Error(err))
	}
}

// ResetFailures closes the circuit.
func (i *Ingestor) ResetFailures() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.consecutiveFailures = 0
	i.metrics.NewsFailures(0)
	i.logger.Info("news failure counter reset")
}

// ResetHashes rebuilds the hash cache from recent files.
func (i *Ingestor) ResetHashes() (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	n, err := i.hashes.Reload(i.recentDays)
	i.metrics.HashCacheSize(i.hashes.Len())
	i.logger.Info("hash cache reloaded", zap.Int("size", n))
	return n, err
}

// Status returns a snapshot of the counters.
func (i *Ingestor) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return Status{
		ConsecutiveFailures: i.consecutiveFailures,
		MaxFailures:         i.maxFailures,
		LastSuccess:         i.lastSuccess,
		HashCount:           i.hashes.Len(),
		MaxHashes:           i.hashes.Max(),
		LastCycle:           i.lastCycle,
	}
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
