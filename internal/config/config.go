package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"MarketHarvest/internal/collector"
	"MarketHarvest/internal/model"
	"MarketHarvest/internal/quotes"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	HTTP struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"http"`
	Quotes   QuotesConfig `yaml:"quotes"`
	News     NewsConfig   `yaml:"news"`
	Schedule struct {
		StatusCron   string   `yaml:"status_cron"`
		PrefetchCron string   `yaml:"prefetch_cron"`
		Watchlist    []string `yaml:"watchlist"`
		PrefetchDays int      `yaml:"prefetch_days"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Proxy string `yaml:"proxy"`
}

// QuotesConfig configures the quote fetcher.
type QuotesConfig struct {
	// Offline replaces every network adapter with the static source.
	Offline       bool                `yaml:"offline"`
	MaxRetries    int                 `yaml:"max_retries"`
	RetryDelayMin time.Duration       `yaml:"retry_delay_min"`
	RetryDelayMax time.Duration       `yaml:"retry_delay_max"`
	Priority      map[string][]string `yaml:"priority"`
	Breaker       struct {
		Failures    uint32        `yaml:"failures"`
		OpenTimeout time.Duration `yaml:"open_timeout"`
	} `yaml:"breaker"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	Cache struct {
		Backend  string                   `yaml:"backend"` // memory, redis or none
		MaxItems int                      `yaml:"max_items"`
		TTL      map[string]time.Duration `yaml:"ttl"`
	} `yaml:"cache"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
}

// NewsConfig configures news ingestion.
type NewsConfig struct {
	Dir         string        `yaml:"dir"`
	Timezone    string        `yaml:"timezone"`
	Interval    time.Duration `yaml:"interval"`
	MaxFailures int           `yaml:"max_failures"`
	MinInterval time.Duration `yaml:"min_interval"`
	MaxHashes   int           `yaml:"max_hashes"`
	RecentDays  int           `yaml:"recent_days"`
	FeedURL     string        `yaml:"feed_url"`
	FeedLimit   int           `yaml:"feed_limit"`
	AutoStart   *bool         `yaml:"auto_start"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"TELEGRAM_BOT_TOKEN": &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   &c.Telegram.ChatID,
		"HTTPS_PROXY":        &c.Proxy,
		"LOG_LEVEL":          &c.Log.Level,
		"LOG_FILE":           &c.Log.File,
		"CACHE_BACKEND":      &c.Quotes.Cache.Backend,
		"REDIS_ADDR":         &c.Quotes.Redis.Addr,
		"REDIS_PASSWORD":     &c.Quotes.Redis.Password,
		"NEWS_DIR":           &c.News.Dir,
		"NEWS_TIMEZONE":      &c.News.Timezone,
		"SQLITE_PATH":        &c.Database.SQLitePath,
		"METRICS_ADDR":       &c.Metrics.Addr,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("NEWS_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NEWS_INTERVAL: %w", err)
		}
		c.News.Interval = d
	}
	if v := os.Getenv("QUOTES_OFFLINE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("QUOTES_OFFLINE: %w", err)
		}
		c.Quotes.Offline = b
	}
	if v := os.Getenv("WATCHLIST"); v != "" {
		c.Schedule.Watchlist = strings.Split(v, ",")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = 10 * time.Second
	}

	q := &c.Quotes
	if q.MaxRetries == 0 {
		q.MaxRetries = 3
	}
	if q.RetryDelayMin == 0 && q.RetryDelayMax == 0 {
		q.RetryDelayMin, q.RetryDelayMax = time.Second, 3*time.Second
	}
	if len(q.Priority) == 0 {
		q.Priority = make(map[string][]string)
		for m, names := range quotes.DefaultPriority() {
			q.Priority[string(m)] = names
		}
	}
	if q.Breaker.Failures == 0 {
		q.Breaker.Failures = 10
	}
	if q.Breaker.OpenTimeout == 0 {
		q.Breaker.OpenTimeout = time.Minute
	}
	if q.RateLimit.RPS == 0 {
		q.RateLimit.RPS = 2
	}
	if q.RateLimit.Burst == 0 {
		q.RateLimit.Burst = 2
	}
	if q.Cache.Backend == "" {
		q.Cache.Backend = "memory"
	}
	if q.Cache.MaxItems == 0 {
		q.Cache.MaxItems = 1000
	}
	if q.Cache.TTL == nil {
		q.Cache.TTL = make(map[string]time.Duration)
	}
	for p, d := range quotes.DefaultTTLs() {
		if _, ok := q.Cache.TTL[string(p)]; !ok {
			q.Cache.TTL[string(p)] = d
		}
	}
	if q.Redis.Addr == "" {
		q.Redis.Addr = "localhost:6379"
	}

	n := &c.News
	if n.Dir == "" {
		n.Dir = "data/news"
	}
	if n.Timezone == "" {
		n.Timezone = "Asia/Shanghai"
	}
	if n.Interval == 0 {
		n.Interval = 10 * time.Minute
	}
	if n.MaxFailures == 0 {
		n.MaxFailures = 5
	}
	if n.MinInterval == 0 {
		n.MinInterval = 30 * time.Second
	}
	if n.MaxHashes == 0 {
		n.MaxHashes = 10000
	}
	if n.RecentDays == 0 {
		n.RecentDays = 3
	}
	if n.FeedLimit == 0 {
		n.FeedLimit = 50
	}
	if n.AutoStart == nil {
		on := true
		n.AutoStart = &on
	}

	if c.Schedule.StatusCron == "" {
		c.Schedule.StatusCron = "0 */30 * * * *"
	}
	if c.Schedule.PrefetchCron == "" {
		c.Schedule.PrefetchCron = "0 30 15 * * 1-5"
	}
	if c.Schedule.PrefetchDays == 0 {
		c.Schedule.PrefetchDays = 120
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/market_harvest.db"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}

// Validate rejects values the components cannot run with. Telegram is
// optional; without a token alerts and commands are disabled.
func (c *Config) Validate() error {
	var errs []error
	q := c.Quotes
	if q.MaxRetries < 1 {
		errs = append(errs, errors.New("quotes.max_retries must be at least 1"))
	}
	if q.RetryDelayMin < 0 || q.RetryDelayMax < q.RetryDelayMin {
		errs = append(errs, errors.New("quotes.retry_delay_min must be >= 0 and <= retry_delay_max"))
	}
	if q.RateLimit.RPS < 0 {
		errs = append(errs, errors.New("quotes.rate_limit.rps must not be negative"))
	}
	for m, names := range q.Priority {
		if !model.Market(m).Valid() {
			errs = append(errs, fmt.Errorf("quotes.priority: unknown market %q", m))
		}
		for _, name := range names {
			if !slices.Contains(collector.BuiltinNames, name) {
				errs = append(errs, fmt.Errorf("quotes.priority.%s: unknown source %q", m, name))
			}
		}
	}
	switch q.Cache.Backend {
	case "memory", "redis", "none":
	default:
		errs = append(errs, fmt.Errorf("quotes.cache.backend %q must be memory, redis or none", q.Cache.Backend))
	}
	for p, d := range q.Cache.TTL {
		if _, ok := quotes.DefaultTTLs()[quotes.Purpose(p)]; !ok {
			errs = append(errs, fmt.Errorf("quotes.cache.ttl: unknown purpose %q", p))
		}
		if d < quotes.MinTTL || d > quotes.MaxTTL {
			errs = append(errs, fmt.Errorf("quotes.cache.ttl.%s %s outside %s-%s", p, d, quotes.MinTTL, quotes.MaxTTL))
		}
	}

	n := c.News
	if n.MaxHashes < 1 {
		errs = append(errs, errors.New("news.max_hashes must be at least 1"))
	}
	if n.MaxFailures < 1 {
		errs = append(errs, errors.New("news.max_failures must be at least 1"))
	}
	if n.Interval <= 0 {
		errs = append(errs, errors.New("news.interval must be positive"))
	}
	if _, err := time.LoadLocation(n.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("news.timezone: %w", err))
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		errs = append(errs, errors.New("telegram.chat_id is required when bot_token is set"))
	}
	return errors.Join(errs...)
}

// Location returns the news timezone, or UTC+8 when tzdata is missing.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.News.Timezone)
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

// Priority converts the configured priority table.
func (c *Config) Priority() map[model.Market][]string {
	out := make(map[model.Market][]string, len(c.Quotes.Priority))
	for m, names := range c.Quotes.Priority {
		out[model.Market(m)] = names
	}
	return out
}

// TTLs converts the configured cache TTLs.
func (c *Config) TTLs() map[quotes.Purpose]time.Duration {
	out := make(map[quotes.Purpose]time.Duration, len(c.Quotes.Cache.TTL))
	for p, d := range c.Quotes.Cache.TTL {
		out[quotes.Purpose(p)] = d
	}
	return out
}
