package collector

import (
	"context"
	"time"

	"MarketHarvest/internal/model"
)

// StaticSource returns generated daily bars around a base price for any
// code. It backs offline runs and local development.
type StaticSource struct {
	Price float64
	// Rows, when set, is returned verbatim instead of generated bars.
	Rows []map[string]any

	now func() time.Time
}

// NewStaticSource creates a static source around price.
func NewStaticSource(price float64) *StaticSource {
	if price <= 0 {
		price = 100
	}
	return &StaticSource{Price: price, now: time.Now}
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) Markets() []model.Market {
	return []model.Market{model.MarketA, model.MarketHK, model.MarketUS}
}

func (s *StaticSource) Fetch(_ context.Context, _ string, _ model.Market, rng model.DateRange) (*model.RawPayload, error) {
	if s.Rows != nil {
		return &model.RawPayload{Source: s.Name(), Rows: s.Rows}, nil
	}
	end := rng.End
	if end.IsZero() {
		end = s.now()
	}
	start := rng.Start
	if start.IsZero() {
		start = end.AddDate(0, 0, -30)
	}
	return &model.RawPayload{Source: s.Name(), Rows: generateBars(s.Price, model.Day(start), model.Day(end))}, nil
}

// generateBars emits one weekday bar per day from start to end with a slow
// upward drift.
func generateBars(base float64, start, end time.Time) []map[string]any {
	var rows []map[string]any
	i := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		p := base * (1 + float64(i)*0.001)
		rows = append(rows, map[string]any{
			"date":   d.Format(time.DateOnly),
			"open":   p * 0.999,
			"high":   p * 1.005,
			"low":    p * 0.995,
			"close":  p,
			"volume": 1000000,
		})
		i++
	}
	return rows
}

// BuiltinNames lists the names of the network adapters returned by Builtin.
var BuiltinNames = []string{"tencent", "eastmoney", "sina", "netease", "yahoo"}

// Builtin creates every network adapter sharing one HTTP client.
func Builtin(client HTTPClient) []Source {
	return []Source{
		NewTencentSource(WithHTTPClient(client)),
		NewEastmoneySource(WithHTTPClient(client)),
		NewSinaSource(WithHTTPClient(client)),
		NewNeteaseSource(WithHTTPClient(client)),
		NewYahooSource(WithHTTPClient(client)),
	}
}
