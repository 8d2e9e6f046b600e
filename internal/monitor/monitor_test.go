package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"MarketHarvest/internal/model"
	"MarketHarvest/internal/news"
	"MarketHarvest/internal/quotes"
	"MarketHarvest/internal/recorder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cst = time.FixedZone("CST", 8*3600)

type fakeIngestor struct {
	status     news.Status
	fetchOK    bool
	fetches    int
	resets     int
	hashReload int
	hashErr    error
}

func (f *fakeIngestor) FetchAndSave(context.Context) bool { f.fetches++; return f.fetchOK }
func (f *fakeIngestor) ResetFailures()                   { f.resets++; f.status.ConsecutiveFailures = 0 }
func (f *fakeIngestor) ResetHashes() (int, error)        { return f.hashReload, f.hashErr }
func (f *fakeIngestor) Status() news.Status              { return f.status }

type fakeScheduler struct {
	alive    bool
	interval time.Duration
	starts   []time.Duration
	stops    int
}

func (f *fakeScheduler) Start(_ context.Context, d time.Duration) bool {
	if f.alive {
		return false
	}
	f.alive, f.interval = true, d
	f.starts = append(f.starts, d)
	return true
}
func (f *fakeScheduler) Stop()                   { f.alive = false; f.stops++ }
func (f *fakeScheduler) IsAlive() bool           { return f.alive }
func (f *fakeScheduler) Interval() time.Duration { return f.interval }

type fakeQuotes struct {
	code   string
	market model.Market
	err    error
}

func (f *fakeQuotes) GetQuotesCached(_ context.Context, code string, market model.Market, rng model.DateRange, _ quotes.Purpose) (*model.PriceSeries, error) {
	f.code, f.market = code, market
	if f.err != nil {
		return nil, f.err
	}
	return &model.PriceSeries{Code: code, Market: market, Source: "stub", Records: []model.PriceRecord{
		{Date: rng.End, Close: 10},
	}}, nil
}

func setup(t *testing.T, now time.Time) (*Checker, *news.Store, *fakeIngestor, *fakeScheduler) {
	store := news.NewStore(t.TempDir(), cst)
	ing := &fakeIngestor{status: news.Status{MaxFailures: 5}, fetchOK: true}
	sched := &fakeScheduler{alive: true, interval: 10 * time.Minute}
	c := NewChecker(store, ing, sched)
	c.now = func() time.Time { return now }
	return c, store, ing, sched
}

func saveFetchedAt(t *testing.T, store *news.Store, at time.Time) {
	t.Helper()
	local := at.In(cst)
	require.NoError(t, store.Save(at, []model.NewsItem{{
		Content:   "c",
		Datetime:  local.Format(news.FetchTimeLayout),
		FetchTime: local.Format(news.FetchTimeLayout),
		Hash:      news.ContentHash("c"),
	}}))
}

func TestCheckHealthy(t *testing.T) {
	now := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)
	c, store, _, _ := setup(t, now)
	saveFetchedAt(t, store, now.Add(-30*time.Minute))

	r := c.Check()
	assert.True(t, r.Healthy(), r.Issues)
	assert.Empty(t, r.Warnings)
	require.Len(t, r.Files, 1)
	assert.Equal(t, 1, r.Files[0].Items)
	assert.True(t, r.LatestFetch.Equal(now.Add(-30*time.Minute)))
	assert.Equal(t, 10*time.Minute, r.SchedulerInterval)
}

func TestCheckFreshness(t *testing.T) {
	now := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)

	c, store, _, _ := setup(t, now)
	saveFetchedAt(t, store, now.Add(-3*time.Hour))
	r := c.Check()
	assert.True(t, r.Healthy())
	assert.Len(t, r.Warnings, 1)

	c, store, _, _ = setup(t, now)
	saveFetchedAt(t, store, now.Add(-5*time.Hour))
	r = c.Check()
	assert.False(t, r.Healthy())
	assert.Contains(t, r.Issues[0], "old")
}

func TestCheckNoFiles(t *testing.T) {
	c, _, _, _ := setup(t, time.Now())
	r := c.Check()
	assert.Equal(t, []string{"no news files found"}, r.Issues)
	assert.NotEmpty(t, r.Recommendations)
}

func TestCheckCircuitAndDeadScheduler(t *testing.T) {
	now := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)
	c, store, ing, sched := setup(t, now)
	saveFetchedAt(t, store, now)
	ing.status.ConsecutiveFailures = 5
	sched.alive = false

	r := c.Check()
	assert.Len(t, r.Issues, 2)
	assert.Len(t, r.Recommendations, 2)

	ing.status.ConsecutiveFailures = 2
	sched.alive = true
	r = c.Check()
	assert.True(t, r.Healthy())
	assert.Equal(t, []string{"2 consecutive failures"}, r.Warnings)
}

func newCommands(t *testing.T) (*Commands, *news.Store, *fakeIngestor, *fakeScheduler, *fakeQuotes) {
	now := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)
	c, store, ing, sched := setup(t, now)
	q := &fakeQuotes{}
	cmds := NewCommands(c, ing, sched, store, q, 15*time.Minute, nil)
	cmds.now = func() time.Time { return now }
	return cmds, store, ing, sched, q
}

func TestHandleHelp(t *testing.T) {
	cmds, _, _, _, _ := newCommands(t)
	assert.Equal(t, helpText, cmds.Handle(context.Background(), "hello"))
	assert.Equal(t, helpText, cmds.Handle(context.Background(), "  "))
}

func TestHandleStatus(t *testing.T) {
	cmds, _, _, _, _ := newCommands(t)
	out := cmds.Handle(context.Background(), "/status@HarvestBot")
	assert.Contains(t, out, "新闻采集状态")
	assert.Contains(t, out, "no news files found")
}

func TestHandleFetch(t *testing.T) {
	cmds, _, ing, _, _ := newCommands(t)
	ing.status.LastCycle = news.CycleResult{Fetched: 5, Saved: 2, Duplicates: 3, Outcome: "ok"}
	assert.Contains(t, cmds.Handle(context.Background(), "/fetch"), "新增 2 条")

	ing.fetchOK = false
	ing.status.LastCycle = news.CycleResult{Outcome: "circuit_open"}
	assert.Contains(t, cmds.Handle(context.Background(), "/fetch"), "circuit_open")
	assert.Equal(t, 2, ing.fetches)
}

func TestHandleReset(t *testing.T) {
	cmds, _, ing, _, _ := newCommands(t)
	ing.status.ConsecutiveFailures = 5
	ing.hashReload = 42
	assert.Contains(t, cmds.Handle(context.Background(), "/reset"), "42")
	assert.Equal(t, 1, ing.resets)
	assert.Zero(t, ing.status.ConsecutiveFailures)

	ing.hashErr = errors.New("corrupt")
	assert.Contains(t, cmds.Handle(context.Background(), "/reset"), "⚠️")
}

func TestHandleRestart(t *testing.T) {
	cmds, _, _, sched, _ := newCommands(t)
	out := cmds.Handle(context.Background(), "/restart")
	assert.Contains(t, out, "15m0s")
	assert.Equal(t, 1, sched.stops)
	assert.Equal(t, []time.Duration{15 * time.Minute}, sched.starts)
	assert.True(t, sched.IsAlive())
}

func TestHandleNews(t *testing.T) {
	cmds, store, _, _, _ := newCommands(t)
	day := time.Date(2026, 10, 19, 2, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(day, []model.NewsItem{
		{Content: "one", Datetime: "2026-10-19 10:00:00"},
		{Content: "two", Datetime: "2026-10-19 09:00:00"},
	}))

	out := cmds.Handle(context.Background(), "/news 1")
	assert.Contains(t, out, "one")
	assert.NotContains(t, out, "two")

	assert.Contains(t, cmds.Handle(context.Background(), "/news x"), "用法")
}

func TestHandleQuote(t *testing.T) {
	cmds, _, _, _, q := newCommands(t)
	out := cmds.Handle(context.Background(), "/quote sh600519")
	assert.Equal(t, "600519", q.code)
	assert.Equal(t, model.MarketA, q.market)
	assert.Contains(t, out, "来源 stub")

	out = cmds.Handle(context.Background(), "/quote 700")
	assert.Equal(t, model.MarketHK, q.market)
	assert.Contains(t, out, "⚠️")

	assert.Contains(t, cmds.Handle(context.Background(), "/quote"), "用法")
	assert.Contains(t, cmds.Handle(context.Background(), "/quote ???"), "无法识别")

	q.err = context.Canceled
	assert.Contains(t, cmds.Handle(context.Background(), "/quote AAPL"), "失败")
}

type fakeHistory struct{ events []recorder.NewsCycleEvent }

func (f fakeHistory) RecentNewsCycles(limit int) ([]recorder.NewsCycleEvent, error) {
	return f.events[:min(limit, len(f.events))], nil
}

func TestHandleCycles(t *testing.T) {
	cmds, _, _, _, _ := newCommands(t)
	assert.Contains(t, cmds.Handle(context.Background(), "/cycles"), "未启用")

	cmds.History = fakeHistory{events: []recorder.NewsCycleEvent{
		{At: time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC), Outcome: "ok", Fetched: 50, Saved: 4, Duplicates: 46, Attempts: 1},
	}}
	out := cmds.Handle(context.Background(), "/cycles")
	assert.Contains(t, out, "10-19 09:30:00")
	assert.Contains(t, out, "新增4")
}
