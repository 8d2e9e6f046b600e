package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"MarketHarvest/internal/model"
	"MarketHarvest/internal/quotes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct{ report model.HealthReport }

func (s stubChecker) Check() model.HealthReport { return s.report }

type stubAlerter struct{ sent []string }

func (a *stubAlerter) SendWithRetry(_ context.Context, text string, _ int) error {
	a.sent = append(a.sent, text)
	return nil
}

type warmCall struct {
	code    string
	market  model.Market
	purpose quotes.Purpose
}

type stubWarmer struct {
	calls []warmCall
	fail  map[string]bool
}

func (w *stubWarmer) GetQuotesCached(_ context.Context, code string, market model.Market, rng model.DateRange, purpose quotes.Purpose) (*model.PriceSeries, error) {
	w.calls = append(w.calls, warmCall{code, market, purpose})
	if w.fail[code] {
		return nil, errors.New("boom")
	}
	s := model.EmptySeries(code, market, rng)
	s.Records = []model.PriceRecord{{Date: rng.End, Close: 1}}
	return s, nil
}

func TestJobsRegisterAll(t *testing.T) {
	j := NewJobs(context.Background(), stubChecker{}, nil, &stubWarmer{}, []string{"600519"}, 0, nil)
	require.NoError(t, j.RegisterAll("0 */30 * * * *", "0 30 15 * * 1-5"))
	assert.Len(t, j.Cron.Entries(), 2)
	assert.Equal(t, 120, j.Days)

	bad := NewJobs(context.Background(), stubChecker{}, nil, nil, nil, 0, nil)
	assert.Error(t, bad.RegisterAll("not a cron", ""))
}

func TestJobsRegisterSkipsPrefetchWithoutWatchlist(t *testing.T) {
	j := NewJobs(context.Background(), stubChecker{}, nil, &stubWarmer{}, nil, 30, nil)
	require.NoError(t, j.RegisterAll("0 */30 * * * *", "0 30 15 * * 1-5"))
	assert.Len(t, j.Cron.Entries(), 1)
}

func TestRunStatusCheckAlertsOnlyWhenUnhealthy(t *testing.T) {
	alerter := &stubAlerter{}
	healthy := model.HealthReport{CheckedAt: time.Now(), SchedulerAlive: true}
	NewJobs(context.Background(), stubChecker{healthy}, alerter, nil, nil, 0, nil).RunStatusCheck()
	assert.Empty(t, alerter.sent)

	sick := model.HealthReport{CheckedAt: time.Now(), Issues: []string{"scheduler not running"}}
	NewJobs(context.Background(), stubChecker{sick}, alerter, nil, nil, 0, nil).RunStatusCheck()
	require.Len(t, alerter.sent, 1)
	assert.Contains(t, alerter.sent[0], "scheduler not running")
}

func TestRunPrefetch(t *testing.T) {
	w := &stubWarmer{fail: map[string]bool{"AAPL": true}}
	j := NewJobs(context.Background(), stubChecker{}, nil, w, []string{"sh600519", "00700.HK", "AAPL", "???"}, 30, nil)
	j.RunPrefetch()

	assert.Equal(t, []warmCall{
		{"600519", model.MarketA, quotes.PurposeDaily},
		{"00700", model.MarketHK, quotes.PurposeDaily},
		{"AAPL", model.MarketUS, quotes.PurposeDaily},
	}, w.calls)
}
