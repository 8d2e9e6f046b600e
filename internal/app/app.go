// Package app assembles the quote and news components from configuration.
package app

import (
	"errors"
	"fmt"

	"MarketHarvest/internal/collector"
	"MarketHarvest/internal/config"
	"MarketHarvest/internal/metrics"
	"MarketHarvest/internal/model"
	"MarketHarvest/internal/news"
	"MarketHarvest/internal/quotes"
	"MarketHarvest/internal/recorder"

	"go.uber.org/zap"
)

// Components are the long-lived objects shared by the commands.
type Components struct {
	Quotes   *quotes.Fetcher
	Store    *news.Store
	Hashes   *news.HashCache
	Ingestor *news.Ingestor
	Recorder recorder.Recorder
	Metrics  *metrics.Metrics

	closers []func() error
}

// Build wires every component. onCircuitOpen may be nil.
func Build(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics, onCircuitOpen func(failures int)) (*Components, error) {
	c := &Components{Metrics: m}

	c.Recorder = openRecorder(cfg.Database.SQLitePath, logger)
	c.closers = append(c.closers, c.Recorder.Close)

	fetcher, err := c.buildQuotes(cfg, logger)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Quotes = fetcher

	loc := cfg.Location()
	c.Store = news.NewStore(cfg.News.Dir, loc)
	c.Hashes = news.NewHashCache(c.Store, cfg.News.MaxHashes)
	n, err := c.Hashes.Load(cfg.News.RecentDays)
	if err != nil {
		logger.Warn("hash cache load skipped files", zap.Error(err))
	}
	logger.Info("hash cache loaded", zap.Int("size", n), zap.Int("max", c.Hashes.Max()))

	feed := news.NewCLSFeed(collector.NewHTTPClient(cfg.HTTP.Timeout, cfg.Proxy), cfg.News.FeedURL, cfg.News.FeedLimit, loc)
	opts := []news.IngestorOption{
		news.WithMaxFailures(cfg.News.MaxFailures),
		news.WithMinInterval(cfg.News.MinInterval),
		news.WithRecentDays(cfg.News.RecentDays),
		news.WithLogger(logger),
		news.WithMetrics(m),
		news.WithRecorder(c.Recorder),
	}
	if onCircuitOpen != nil {
		opts = append(opts, news.WithCircuitOpenHook(onCircuitOpen))
	}
	c.Ingestor = news.NewIngestor(feed, c.Store, c.Hashes, opts...)
	return c, nil
}

func openRecorder(path string, logger *zap.Logger) recorder.Recorder {
	if path == "" {
		return recorder.NewNoopRecorder()
	}
	r, err := recorder.NewSQLiteRecorder(path, logger)
	if err != nil {
		logger.Warn("init sqlite recorder failed, using noop", zap.Error(err))
		return recorder.NewNoopRecorder()
	}
	return r
}

func (c *Components) buildQuotes(cfg *config.Config, logger *zap.Logger) (*quotes.Fetcher, error) {
	var (
		sources  []collector.Source
		priority map[model.Market][]string
	)
	if cfg.Quotes.Offline {
		sources = []collector.Source{collector.NewStaticSource(100)}
		priority = make(map[model.Market][]string, len(model.Markets))
		for _, mk := range model.Markets {
			priority[mk] = []string{"static"}
		}
		logger.Warn("quotes running offline on generated data")
	} else {
		sources = collector.Builtin(collector.NewHTTPClient(cfg.HTTP.Timeout, cfg.Proxy))
		priority = cfg.Priority()
	}
	reg, err := quotes.NewRegistry(sources, priority)
	if err != nil {
		return nil, fmt.Errorf("build source registry: %w", err)
	}

	q := cfg.Quotes
	opts := []quotes.Option{
		quotes.WithMaxRetries(q.MaxRetries),
		quotes.WithRetryDelay(q.RetryDelayMin, q.RetryDelayMax),
		quotes.WithBreaker(quotes.BreakerSettings{ConsecutiveFailures: q.Breaker.Failures, OpenTimeout: q.Breaker.OpenTimeout}),
		quotes.WithRateLimit(quotes.RateSettings{RPS: q.RateLimit.RPS, Burst: q.RateLimit.Burst}),
		quotes.WithLogger(logger),
		quotes.WithMetrics(c.Metrics),
		quotes.WithRecorder(c.Recorder),
	}
	switch q.Cache.Backend {
	case "memory":
		opts = append(opts, quotes.WithCache(quotes.NewMemoryCache(q.Cache.MaxItems), cfg.TTLs()))
	case "redis":
		rc, err := quotes.NewRedisCache(q.Redis.Addr, q.Redis.Password, q.Redis.DB, logger)
		if err != nil {
			logger.Warn("redis unavailable, falling back to memory cache", zap.Error(err))
			opts = append(opts, quotes.WithCache(quotes.NewMemoryCache(q.Cache.MaxItems), cfg.TTLs()))
			break
		}
		c.closers = append(c.closers, rc.Close)
		opts = append(opts, quotes.WithCache(rc, cfg.TTLs()))
	}

	for _, mk := range model.Markets {
		names := make([]string, 0)
		for _, d := range reg.Descriptors(mk) {
			names = append(names, d.Name)
		}
		logger.Info("quote sources", zap.String("market", string(mk)), zap.Strings("order", names))
	}
	return quotes.NewFetcher(reg, opts...), nil
}

// Close releases the recorder and cache connections.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}
