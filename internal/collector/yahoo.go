package collector

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"MarketHarvest/internal/model"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooSource reads daily bars from the Yahoo Finance chart API. It serves
// US listings and Hong Kong codes as NNNN.HK.
type YahooSource struct {
	opts      options
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
}

// NewYahooSource creates the Yahoo adapter.
func NewYahooSource(opts ...Option) *YahooSource {
	return &YahooSource{
		opts: buildOptions(yahooBaseURL, opts),
		SymbolMap: map[string]string{
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
			"SP500":  "^GSPC",
			"NDX":    "^NDX",
			"DJI":    "^DJI",
			"HSI":    "^HSI",
		},
	}
}

func (s *YahooSource) Name() string { return "yahoo" }

func (s *YahooSource) Markets() []model.Market {
	return []model.Market{model.MarketHK, model.MarketUS}
}

func (s *YahooSource) yahooSymbol(code string, market model.Market) (string, error) {
	if mapped, ok := s.SymbolMap[strings.ToUpper(code)]; ok {
		return mapped, nil
	}
	switch market {
	case model.MarketUS:
		return strings.ToUpper(code), nil
	case model.MarketHK:
		return padHK(code, 4) + ".HK", nil
	}
	return "", fmt.Errorf("yahoo: unsupported market %q", market)
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []any `json:"open"`
					High   []any `json:"high"`
					Low    []any `json:"low"`
					Close  []any `json:"close"`
					Volume []any `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (s *YahooSource) Fetch(ctx context.Context, code string, market model.Market, rng model.DateRange) (*model.RawPayload, error) {
	symbol, err := s.yahooSymbol(code, market)
	if err != nil {
		return nil, err
	}

	end := rng.End
	if end.IsZero() {
		end = time.Now()
	}
	start := rng.Start
	if start.IsZero() {
		start = end.AddDate(-1, 0, 0)
	}
	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("period1", fmt.Sprint(start.Unix()))
	// period2 is exclusive; include the whole end day
	q.Set("period2", fmt.Sprint(end.AddDate(0, 0, 1).Unix()))
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", s.opts.baseURL, url.PathEscape(symbol), q.Encode())

	var chart yahooChart
	if err := GetJSON(ctx, s.opts.client, s.Name(), u, nil, &chart); err != nil {
		return nil, err
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 ||
		len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, ErrNoData)
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	rows := make([]map[string]any, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		rows = append(rows, map[string]any{
			"timestamp": ts,
			"open":      at(quote.Open, i),
			"high":      at(quote.High, i),
			"low":       at(quote.Low, i),
			"close":     at(quote.Close, i),
			"volume":    at(quote.Volume, i),
		})
	}
	return &model.RawPayload{Source: s.Name(), Rows: rows}, nil
}

// at returns v[i], or nil when the indicator array is short.
func at(v []any, i int) any {
	if i < len(v) {
		return v[i]
	}
	return nil
}
