// Command quote fetches one price series, or runs one news cycle, and prints
// the result as JSON.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"MarketHarvest/internal/app"
	"MarketHarvest/internal/config"
	"MarketHarvest/internal/logger"
	"MarketHarvest/internal/model"
	"MarketHarvest/internal/quotes"

	"github.com/joho/godotenv"
	"github.com/segmentio/encoding/json"
)

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and returns the process exit code. Deferred
// cleanup runs before main exits.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("quote", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		cfgPath = fs.String("config", "configs/config.yaml", "config file")
		code    = fs.String("code", "", "instrument code, e.g. 600519, sh600519, 00700.HK, AAPL")
		market  = fs.String("market", "", "force market A, HK or US instead of inferring it")
		days    = fs.Int("days", 30, "calendar days of history")
		purpose = fs.String("purpose", "", "use the cache with purpose intraday, daily or history")
		runNews = fs.Bool("news", false, "run one news ingestion cycle instead of a quote lookup")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if v := os.Getenv("CONFIG_PATH"); v != "" && !isFlagSet(fs, "config") {
		*cfgPath = v
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "config validation: %v\n", err)
		return 1
	}
	if !*runNews && *code == "" {
		fs.Usage()
		return 2
	}

	log := logger.NewStderr("quote", cfg.Log.Level, cfg.Log.File)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	comps, err := app.Build(cfg, log, nil, nil)
	if err != nil {
		fmt.Fprintf(stderr, "build components: %v\n", err)
		return 1
	}
	defer comps.Close()

	if *runNews {
		ok := comps.Ingestor.FetchAndSave(ctx)
		if err := printJSON(stdout, comps.Ingestor.Status().LastCycle); err != nil {
			fmt.Fprintf(stderr, "encode result: %v\n", err)
			return 1
		}
		if !ok {
			return 1
		}
		return 0
	}

	c, err := resolve(*code, *market)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	if c.Ambiguous {
		fmt.Fprintf(stderr, "warning: %s\n", c.Reason)
	}

	rng := model.LastDays(time.Now(), *days)
	var series *model.PriceSeries
	if *purpose != "" {
		series, err = comps.Quotes.GetQuotesCached(ctx, c.Code, c.Market, rng, quotes.Purpose(*purpose))
	} else {
		series, err = comps.Quotes.GetQuotes(ctx, c.Code, c.Market, rng)
	}
	if err != nil {
		fmt.Fprintf(stderr, "get quotes: %v\n", err)
		return 1
	}
	if err := printJSON(stdout, series); err != nil {
		fmt.Fprintf(stderr, "encode result: %v\n", err)
		return 1
	}
	if !series.Available() {
		fmt.Fprintln(stderr, "no data available from any source")
		return 1
	}
	return 0
}

// resolve applies an explicit market or falls back to classification.
func resolve(code, market string) (quotes.Classification, error) {
	if market == "" {
		return quotes.ClassifyMarket(code)
	}
	m, err := quotes.ParseMarket(market)
	if err != nil {
		return quotes.Classification{}, err
	}
	c, err := quotes.ClassifyMarket(code)
	if err != nil || c.Market != m {
		return quotes.Classification{Code: code, Market: m}, nil
	}
	c.Ambiguous = false
	return c, nil
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
