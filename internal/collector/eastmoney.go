package collector

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"MarketHarvest/internal/model"
)

const eastmoneyBaseURL = "https://push2his.eastmoney.com"

// EastmoneySource reads daily klines from the Eastmoney history API. A-shares only.
type EastmoneySource struct {
	opts options
}

// NewEastmoneySource creates the Eastmoney adapter.
func NewEastmoneySource(opts ...Option) *EastmoneySource {
	return &EastmoneySource{opts: buildOptions(eastmoneyBaseURL, opts)}
}

func (s *EastmoneySource) Name() string { return "eastmoney" }

func (s *EastmoneySource) Markets() []model.Market { return []model.Market{model.MarketA} }

// eastmoneyColumns matches fields2=f51,f52,f53,f54,f55,f56,f57,f59.
var eastmoneyColumns = []string{"日期", "开盘", "收盘", "最高", "最低", "成交量", "成交额", "涨跌幅"}

type eastmoneyResponse struct {
	RC   int `json:"rc"`
	Data *struct {
		Code   string   `json:"code"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

func (s *EastmoneySource) Fetch(ctx context.Context, code string, market model.Market, rng model.DateRange) (*model.RawPayload, error) {
	if market != model.MarketA {
		return nil, fmt.Errorf("eastmoney: unsupported market %q", market)
	}
	ex, err := ExchangeOf(code)
	if err != nil {
		return nil, err
	}
	prefix := "0"
	if ex == ExchangeSH {
		prefix = "1"
	}

	q := url.Values{}
	q.Set("secid", prefix+"."+code)
	q.Set("fields1", "f1,f2,f3,f4,f5,f6")
	q.Set("fields2", "f51,f52,f53,f54,f55,f56,f57,f59")
	q.Set("klt", "101")
	q.Set("fqt", "1")
	q.Set("beg", "0")
	if !rng.Start.IsZero() {
		q.Set("beg", rng.Start.Format("20060102"))
	}
	q.Set("end", "20500101")
	if !rng.End.IsZero() {
		q.Set("end", rng.End.Format("20060102"))
	}
	q.Set("lmt", "550")
	u := s.opts.baseURL + "/api/qt/stock/kline/get?" + q.Encode()

	var resp eastmoneyResponse
	if err := GetJSON(ctx, s.opts.client, s.Name(), u, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil || len(resp.Data.Klines) == 0 {
		return nil, fmt.Errorf("eastmoney %s: %w", code, ErrNoData)
	}

	rows := make([]map[string]any, 0, len(resp.Data.Klines))
	for _, line := range resp.Data.Klines {
		cells := strings.Split(line, ",")
		m := make(map[string]any, len(eastmoneyColumns))
		for i, col := range eastmoneyColumns {
			if i < len(cells) {
				m[col] = cells[i]
			}
		}
		rows = append(rows, m)
	}
	return &model.RawPayload{Source: s.Name(), Rows: rows}, nil
}
