package monitor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"MarketHarvest/internal/model"
	"MarketHarvest/internal/news"
	"MarketHarvest/internal/notifier"
	"MarketHarvest/internal/quotes"
	"MarketHarvest/internal/recorder"

	"go.uber.org/zap"
)

// Ingestor is the news ingestor as driven by operators.
type Ingestor interface {
	FetchAndSave(ctx context.Context) bool
	ResetFailures()
	ResetHashes() (int, error)
	Status() news.Status
}

// Scheduler is the news scheduler as driven by operators.
type Scheduler interface {
	Start(ctx context.Context, interval time.Duration) bool
	Stop()
	IsAlive() bool
	Interval() time.Duration
}

// History serves /cycles.
type History interface {
	RecentNewsCycles(limit int) ([]recorder.NewsCycleEvent, error)
}

// QuoteReader serves /quote.
type QuoteReader interface {
	GetQuotesCached(ctx context.Context, code string, market model.Market, rng model.DateRange, purpose quotes.Purpose) (*model.PriceSeries, error)
}

const (
	defaultNewsCount = 10
	maxNewsCount     = 30
	quoteRows        = 5
	quoteDays        = 30
)

// Commands answers operator chat commands.
type Commands struct {
	Checker   *Checker
	Ingestor  Ingestor
	Scheduler Scheduler
	Store     *news.Store
	Quotes    QuoteReader
	History   History
	Interval  time.Duration
	NewsDays  int

	logger *zap.Logger
	now    func() time.Time
}

// NewCommands wires the handlers. quotes may be nil, which disables /quote.
func NewCommands(checker *Checker, ing Ingestor, sched Scheduler, store *news.Store, q QuoteReader, interval time.Duration, logger *zap.Logger) *Commands {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Commands{
		Checker:   checker,
		Ingestor:  ing,
		Scheduler: sched,
		Store:     store,
		Quotes:    q,
		Interval:  interval,
		NewsDays:  news.DefaultRecentDays,
		logger:    logger.Named("commands"),
		now:       time.Now,
	}
}

// Handle processes a user command and returns a reply.
func (c *Commands) Handle(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	// "/status@SomeBot" in group chats
	name, _, _ := strings.Cut(fields[0], "@")
	args := fields[1:]

	switch name {
	case "/status", "查看状态":
		r := c.Checker.Check()
		return notifier.FormatHealthReport(&r)
	case "/fetch", "立即抓取":
		return c.fetch(ctx)
	case "/reset", "重置":
		return c.reset()
	case "/restart", "重启":
		return c.restart(ctx)
	case "/news", "最新新闻":
		return c.latestNews(args)
	case "/quote", "行情":
		return c.quote(ctx, args)
	case "/cycles", "采集记录":
		return c.cycles()
	default:
		return helpText
	}
}

const helpText = "可用命令:\n" +
	"• /status 采集状态\n" +
	"• /fetch 立即抓取一次\n" +
	"• /reset 重置失败计数并重建哈希缓存\n" +
	"• /restart 重启调度器\n" +
	"• /news [n] 最新新闻\n" +
	"• /quote CODE 最近行情\n" +
	"• /cycles 最近采集记录"

func (c *Commands) fetch(ctx context.Context) string {
	ok := c.Ingestor.FetchAndSave(ctx)
	last := c.Ingestor.Status().LastCycle
	if !ok {
		msg := fmt.Sprintf("❌ 抓取失败 (%s)", last.Outcome)
		if last.Err != "" {
			msg += "\n" + last.Err
		}
		return msg
	}
	return fmt.Sprintf("✅ 抓取完成: 获取 %d 条, 新增 %d 条, 重复 %d 条", last.Fetched, last.Saved, last.Duplicates)
}

func (c *Commands) reset() string {
	c.Ingestor.ResetFailures()
	n, err := c.Ingestor.ResetHashes()
	if err != nil {
		c.logger.Warn("hash reload reported errors", zap.Error(err))
		return fmt.Sprintf("⚠️ 已重置失败计数, 哈希缓存重建 %d 条 (部分文件读取失败)", n)
	}
	return fmt.Sprintf("✅ 已重置失败计数, 哈希缓存重建 %d 条", n)
}

func (c *Commands) restart(ctx context.Context) string {
	interval := c.Interval
	if interval <= 0 {
		interval = c.Scheduler.Interval()
	}
	c.Scheduler.Stop()
	if !c.Scheduler.Start(ctx, interval) {
		return "⚠️ 调度器已在运行"
	}
	c.logger.Info("news scheduler restarted by operator", zap.Duration("interval", interval))
	return fmt.Sprintf("✅ 调度器已重启, 间隔 %s", interval)
}

func (c *Commands) latestNews(args []string) string {
	n := defaultNewsCount
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return "用法: /news [条数]"
		}
		n = min(v, maxNewsCount)
	}
	items, err := c.Store.LatestNews(c.NewsDays, n)
	if err != nil {
		c.logger.Error("read latest news", zap.Error(err))
		return "❌ 读取新闻失败"
	}
	return notifier.FormatNews(items)
}

func (c *Commands) cycles() string {
	if c.History == nil {
		return "❌ 采集记录未启用"
	}
	events, err := c.History.RecentNewsCycles(10)
	if err != nil {
		c.logger.Error("read news cycles", zap.Error(err))
		return "❌ 读取采集记录失败"
	}
	return notifier.FormatNewsCycles(events)
}

func (c *Commands) quote(ctx context.Context, args []string) string {
	if c.Quotes == nil {
		return "❌ 行情服务未启用"
	}
	if len(args) == 0 {
		return "用法: /quote CODE"
	}
	cl, err := quotes.ClassifyMarket(args[0])
	if err != nil {
		return fmt.Sprintf("❌ 无法识别代码 %s", args[0])
	}
	if cl.Ambiguous {
		c.logger.Warn("ambiguous market", zap.String("code", args[0]), zap.String("reason", cl.Reason))
	}
	s, err := c.Quotes.GetQuotesCached(ctx, cl.Code, cl.Market, model.LastDays(c.now(), quoteDays), quotes.PurposeDaily)
	if err != nil {
		c.logger.Error("quote command", zap.String("code", args[0]), zap.Error(err))
		return "❌ 行情获取失败"
	}
	reply := notifier.FormatQuotes(s, quoteRows)
	if cl.Ambiguous {
		reply += "\n⚠️ " + cl.Reason
	}
	return reply
}
