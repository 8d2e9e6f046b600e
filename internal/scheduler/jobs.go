package scheduler

import (
	"context"
	"fmt"
	"time"

	"MarketHarvest/internal/model"
	"MarketHarvest/internal/notifier"
	"MarketHarvest/internal/quotes"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// HealthChecker produces a health report of the news pipeline.
type HealthChecker interface {
	Check() model.HealthReport
}

// Alerter delivers operator messages.
type Alerter interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// QuoteWarmer fills the quote cache.
type QuoteWarmer interface {
	GetQuotesCached(ctx context.Context, code string, market model.Market, rng model.DateRange, purpose quotes.Purpose) (*model.PriceSeries, error)
}

// Jobs manages the cron tasks around the news loop.
type Jobs struct {
	Cron      *cron.Cron
	Checker   HealthChecker
	Alerter   Alerter
	Quotes    QuoteWarmer
	Watchlist []string
	Days      int
	Ctx       context.Context

	logger *zap.Logger
	now    func() time.Time
}

// NewJobs creates the cron runner. Alerter and Quotes may be nil.
func NewJobs(ctx context.Context, checker HealthChecker, alerter Alerter, q QuoteWarmer, watchlist []string, days int, logger *zap.Logger) *Jobs {
	if logger == nil {
		logger = zap.NewNop()
	}
	if days <= 0 {
		days = 120
	}
	return &Jobs{
		Cron:      cron.New(cron.WithSeconds()),
		Checker:   checker,
		Alerter:   alerter,
		Quotes:    q,
		Watchlist: watchlist,
		Days:      days,
		Ctx:       ctx,
		logger:    logger.Named("jobs"),
		now:       time.Now,
	}
}

// RegisterAll registers the status check and watchlist prefetch. An empty
// expression disables that job.
func (j *Jobs) RegisterAll(statusCron, prefetchCron string) error {
	if statusCron != "" {
		if _, err := j.Cron.AddFunc(statusCron, j.RunStatusCheck); err != nil {
			return fmt.Errorf("register status check: %w", err)
		}
	}
	if prefetchCron != "" && len(j.Watchlist) > 0 && j.Quotes != nil {
		if _, err := j.Cron.AddFunc(prefetchCron, j.RunPrefetch); err != nil {
			return fmt.Errorf("register prefetch: %w", err)
		}
	}
	return nil
}

func (j *Jobs) Start() {
	j.Cron.Start()
	j.logger.Info("cron jobs started", zap.Int("entries", len(j.Cron.Entries())))
}

// Stop stops the cron and waits for running jobs.
func (j *Jobs) Stop() {
	<-j.Cron.Stop().Done()
	j.logger.Info("cron jobs stopped")
}

// RunStatusCheck logs the health report and alerts when it is unhealthy.
func (j *Jobs) RunStatusCheck() {
	report := j.Checker.Check()
	fields := []zap.Field{
		zap.Bool("healthy", report.Healthy()),
		zap.Bool("scheduler_alive", report.SchedulerAlive),
		zap.Int("failures", report.ConsecutiveFailures),
		zap.Int("hashes", report.HashCount),
		zap.Time("latest_fetch", report.LatestFetch),
		zap.Strings("issues", report.Issues),
		zap.Strings("warnings", report.Warnings),
	}
	if report.Healthy() {
		j.logger.Info("status check", fields...)
		return
	}
	j.logger.Warn("status check found issues", fields...)
	j.send(notifier.FormatHealthReport(&report))
}

// RunPrefetch warms the daily cache for every watchlist code.
func (j *Jobs) RunPrefetch() {
	rng := model.LastDays(j.now(), j.Days)
	warmed := 0
	for _, raw := range j.Watchlist {
		if j.Ctx.Err() != nil {
			return
		}
		c, err := quotes.ClassifyMarket(raw)
		if err != nil {
			j.logger.Warn("prefetch: skip code", zap.String("code", raw), zap.Error(err))
			continue
		}
		if c.Ambiguous {
			j.logger.Warn("prefetch: ambiguous market", zap.String("code", raw),
				zap.String("market", string(c.Market)), zap.String("reason", c.Reason))
		}
		s, err := j.Quotes.GetQuotesCached(j.Ctx, c.Code, c.Market, rng, quotes.PurposeDaily)
		if err != nil {
			j.logger.Warn("prefetch failed", zap.String("code", raw), zap.Error(err))
			continue
		}
		if s.Available() {
			warmed++
		}
	}
	j.logger.Info("prefetch finished", zap.Int("warmed", warmed), zap.Int("watchlist", len(j.Watchlist)))
}

func (j *Jobs) send(text string) {
	if j.Alerter == nil {
		return
	}
	if err := j.Alerter.SendWithRetry(j.Ctx, text, 3); err != nil {
		j.logger.Error("send alert", zap.Error(err))
	}
}
