package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MarketHarvest/internal/metrics"

	"go.uber.org/zap"
)

// Defaults for NewsScheduler.
const (
	DefaultNewsInterval = 10 * time.Minute
	DefaultRecoveryWait = 60 * time.Second
	DefaultJoinTimeout  = 10 * time.Second
)

// Runner executes one ingestion cycle.
type Runner interface {
	FetchAndSave(ctx context.Context) bool
}

// NewsScheduler runs a Runner on a fixed interval in one background
// goroutine. Stop is cooperative: an in-flight cycle finishes first.
type NewsScheduler struct {
	runner       Runner
	logger       *zap.Logger
	metrics      *metrics.Metrics
	recoveryWait time.Duration
	joinTimeout  time.Duration

	mu       sync.Mutex
	running  bool
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewsOption configures a NewsScheduler.
type NewsOption func(*NewsScheduler)

// WithRecoveryWait sets the pause after a cycle panics.
func WithRecoveryWait(d time.Duration) NewsOption {
	return func(s *NewsScheduler) { s.recoveryWait = d }
}

// WithJoinTimeout bounds how long Stop waits for the loop to exit.
func WithJoinTimeout(d time.Duration) NewsOption {
	return func(s *NewsScheduler) { s.joinTimeout = d }
}

func WithLogger(l *zap.Logger) NewsOption {
	return func(s *NewsScheduler) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) NewsOption {
	return func(s *NewsScheduler) { s.metrics = m }
}

// NewNewsScheduler creates a stopped scheduler.
func NewNewsScheduler(runner Runner, opts ...NewsOption) *NewsScheduler {
	s := &NewsScheduler{
		runner:       runner,
		logger:       zap.NewNop(),
		recoveryWait: DefaultRecoveryWait,
		joinTimeout:  DefaultJoinTimeout,
		interval:     DefaultNewsInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("news_scheduler")
	return s
}

// Start launches the loop. It returns false and does nothing when the
// scheduler is already running. The loop also exits when ctx is done.
func (s *NewsScheduler) Start(ctx context.Context, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn("news scheduler already running", zap.Duration("interval", s.interval))
		return false
	}
	if interval <= 0 {
		interval = DefaultNewsInterval
	}
	s.interval = interval
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true
	s.metrics.SchedulerRunning(true)

	go s.loop(ctx, interval, s.stop, s.done)
	s.logger.Info("news scheduler started", zap.Duration("interval", interval))
	return true
}

// Stop signals the loop and waits up to the join timeout. The scheduler is
// marked stopped whether or not the loop exited in time.
func (s *NewsScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stop)
	done := s.done
	s.running = false
	s.metrics.SchedulerRunning(false)
	s.mu.Unlock()

	select {
	case <-done:
		s.logger.Info("news scheduler stopped")
	case <-time.After(s.joinTimeout):
		s.logger.Warn("news scheduler did not exit in time", zap.Duration("timeout", s.joinTimeout))
	}
}

// IsAlive reports whether the scheduler is running and its loop has not exited.
func (s *NewsScheduler) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Interval returns the interval of the current or last run.
func (s *NewsScheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *NewsScheduler) loop(ctx context.Context, interval time.Duration, stop, done chan struct{}) {
	defer close(done)
	for {
		wait := interval
		if err := s.runOnce(ctx); err != nil {
			wait = s.recoveryWait
		}

		timer := time.NewTimer(wait)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("news scheduler context done")
			return
		case <-timer.C:
		}
	}
}

// runOnce runs one cycle and converts a panic into an error.
func (s *NewsScheduler) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("news cycle panic: %v", r)
			s.logger.Error("news cycle panicked, recovering",
				zap.Any("panic", r), zap.Stack("stack"), zap.Duration("retry_in", s.recoveryWait))
		}
	}()

	start := time.Now()
	ok := s.runner.FetchAndSave(ctx)
	s.logger.Info("news cycle finished", zap.Bool("success", ok), zap.Duration("took", time.Since(start)))
	return nil
}
