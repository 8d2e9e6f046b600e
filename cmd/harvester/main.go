package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"MarketHarvest/internal/app"
	"MarketHarvest/internal/config"
	"MarketHarvest/internal/logger"
	"MarketHarvest/internal/metrics"
	"MarketHarvest/internal/monitor"
	"MarketHarvest/internal/notifier"
	"MarketHarvest/internal/scheduler"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}

	log := logger.New("harvester", cfg.Log.Level, cfg.Log.File)
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("config validation", zap.Error(err))
	}
	log.Info("MarketHarvest starting", zap.String("config", cfgPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
	if !tn.Enabled() {
		log.Warn("telegram not configured, alerts and commands disabled")
	}

	comps, err := app.Build(cfg, log, m, func(failures int) {
		go func() {
			if err := tn.SendWithRetry(ctx, notifier.FormatCircuitAlert(failures, cfg.News.MaxFailures), 3); err != nil {
				log.Error("send circuit alert", zap.Error(err))
			}
		}()
	})
	if err != nil {
		log.Fatal("build components", zap.Error(err))
	}
	defer func() {
		if err := comps.Close(); err != nil {
			log.Error("close components", zap.Error(err))
		}
	}()

	newsSched := scheduler.NewNewsScheduler(comps.Ingestor,
		scheduler.WithLogger(log),
		scheduler.WithMetrics(m),
	)
	checker := monitor.NewChecker(comps.Store, comps.Ingestor, newsSched)
	commands := monitor.NewCommands(checker, comps.Ingestor, newsSched, comps.Store, comps.Quotes, cfg.News.Interval, log)
	commands.History = comps.Recorder

	jobs := scheduler.NewJobs(ctx, checker, tn, comps.Quotes, cfg.Schedule.Watchlist, cfg.Schedule.PrefetchDays, log)
	if err := jobs.RegisterAll(cfg.Schedule.StatusCron, cfg.Schedule.PrefetchCron); err != nil {
		log.Fatal("register cron tasks", zap.Error(err))
	}
	jobs.Start()
	defer jobs.Stop()

	if *cfg.News.AutoStart {
		newsSched.Start(ctx, cfg.News.Interval)
	}
	defer newsSched.Stop()

	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           metricsMux(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("metrics listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		tn.StartPolling(gctx, commands.Handle)
		return nil
	})

	log.Info("MarketHarvest is running. Press Ctrl+C to stop.")
	if err := g.Wait(); err != nil {
		log.Error("service error", zap.Error(err))
	}
	log.Info("MarketHarvest stopped")
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
