package collector

import (
	"context"
	"fmt"

	"MarketHarvest/internal/model"
)

const neteaseBaseURL = "https://img1.money.126.net"

// NeteaseSource reads the Netease daily history file. A-shares only.
type NeteaseSource struct {
	opts options
}

// NewNeteaseSource creates the Netease adapter.
func NewNeteaseSource(opts ...Option) *NeteaseSource {
	return &NeteaseSource{opts: buildOptions(neteaseBaseURL, opts)}
}

func (s *NeteaseSource) Name() string { return "netease" }

func (s *NeteaseSource) Markets() []model.Market { return []model.Market{model.MarketA} }

var neteaseColumns = []string{"日期", "开盘", "收盘", "最高", "最低", "成交量", "涨跌幅"}

type neteaseResponse struct {
	Symbol string  `json:"symbol"`
	Data   [][]any `json:"data"`
}

func (s *NeteaseSource) Fetch(ctx context.Context, code string, market model.Market, _ model.DateRange) (*model.RawPayload, error) {
	if market != model.MarketA {
		return nil, fmt.Errorf("netease: unsupported market %q", market)
	}
	ex, err := ExchangeOf(code)
	if err != nil {
		return nil, err
	}
	// Netease prefixes Shanghai with 0 and everything else with 1.
	prefix := "1"
	if ex == ExchangeSH {
		prefix = "0"
	}
	u := fmt.Sprintf("%s/data/hs/kline/day/history/%s%s.json", s.opts.baseURL, prefix, code)

	var resp neteaseResponse
	if err := GetJSON(ctx, s.opts.client, s.Name(), u, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("netease %s: %w", code, ErrNoData)
	}
	return &model.RawPayload{Source: s.Name(), Rows: positionalRows(resp.Data, neteaseColumns)}, nil
}
