package collector

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"MarketHarvest/internal/model"

	"github.com/segmentio/encoding/json"
)

const tencentBaseURL = "https://web.ifzq.gtimg.cn"

// tencentLimit is the largest bar count the kline endpoint returns.
const tencentLimit = 550

// TencentSource reads forward-adjusted daily klines from Tencent quotes.
type TencentSource struct {
	opts options
}

// NewTencentSource creates the Tencent adapter.
func NewTencentSource(opts ...Option) *TencentSource {
	return &TencentSource{opts: buildOptions(tencentBaseURL, opts)}
}

func (s *TencentSource) Name() string { return "tencent" }

func (s *TencentSource) Markets() []model.Market {
	return []model.Market{model.MarketA, model.MarketHK, model.MarketUS}
}

func tencentSymbol(code string, market model.Market) (string, error) {
	switch market {
	case model.MarketA:
		ex, err := ExchangeOf(code)
		if err != nil {
			return "", err
		}
		return string(ex) + code, nil
	case model.MarketHK:
		return "hk" + padHK(code, 5), nil
	case model.MarketUS:
		return "us" + strings.ToUpper(code) + ".OQ", nil
	}
	return "", fmt.Errorf("tencent: unsupported market %q", market)
}

type tencentResponse struct {
	Code int                        `json:"code"`
	Msg  string                     `json:"msg"`
	Data map[string]json.RawMessage `json:"data"`
}

type tencentKlines struct {
	QfqDay [][]any `json:"qfqday"`
	Day    [][]any `json:"day"`
}

// tencentColumns is the positional layout of a kline row.
var tencentColumns = []string{"date", "open", "close", "high", "low", "volume"}

func (s *TencentSource) Fetch(ctx context.Context, code string, market model.Market, rng model.DateRange) (*model.RawPayload, error) {
	symbol, err := tencentSymbol(code, market)
	if err != nil {
		return nil, err
	}

	start, end := "", ""
	if !rng.Start.IsZero() {
		start = rng.Start.Format(time.DateOnly)
	}
	if !rng.End.IsZero() {
		end = rng.End.Format(time.DateOnly)
	}
	q := url.Values{}
	q.Set("param", fmt.Sprintf("%s,day,%s,%s,%d,qfq", symbol, start, end, tencentLimit))
	u := s.opts.baseURL + "/appstock/app/fqkline/get?" + q.Encode()

	var resp tencentResponse
	if err := GetJSON(ctx, s.opts.client, s.Name(), u, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("tencent api error %d: %s", resp.Code, resp.Msg)
	}
	raw, ok := resp.Data[symbol]
	if !ok {
		return nil, fmt.Errorf("tencent %s: %w", symbol, ErrNoData)
	}
	var k tencentKlines
	if err := json.Unmarshal(raw, &k); err != nil {
		return nil, fmt.Errorf("tencent decode klines: %w", err)
	}
	rows := k.QfqDay
	if len(rows) == 0 {
		rows = k.Day
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("tencent %s: %w", symbol, ErrNoData)
	}

	return &model.RawPayload{Source: s.Name(), Rows: positionalRows(rows, tencentColumns)}, nil
}

// positionalRows names array cells by column. Short rows keep what they have.
func positionalRows(rows [][]any, columns []string) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		m := make(map[string]any, len(columns))
		for i, col := range columns {
			if i < len(r) {
				m[col] = r[i]
			}
		}
		out = append(out, m)
	}
	return out
}
