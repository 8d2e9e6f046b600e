package collector

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"MarketHarvest/internal/model"

	"github.com/segmentio/encoding/json"
)

const sinaBaseURL = "https://money.finance.sina.com.cn"

// SinaSource reads daily klines from Sina market data. A-shares only. The
// endpoint ignores the date range and returns the latest bars.
type SinaSource struct {
	opts options
}

// NewSinaSource creates the Sina adapter.
func NewSinaSource(opts ...Option) *SinaSource {
	return &SinaSource{opts: buildOptions(sinaBaseURL, opts)}
}

func (s *SinaSource) Name() string { return "sina" }

func (s *SinaSource) Markets() []model.Market { return []model.Market{model.MarketA} }

func (s *SinaSource) Fetch(ctx context.Context, code string, market model.Market, _ model.DateRange) (*model.RawPayload, error) {
	if market != model.MarketA {
		return nil, fmt.Errorf("sina: unsupported market %q", market)
	}
	ex, err := ExchangeOf(code)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("symbol", string(ex)+code)
	q.Set("scale", "240")
	q.Set("ma", "no")
	q.Set("datalen", "550")
	u := s.opts.baseURL + "/quotes_service/api/json_v2.php/CN_MarketData.getKLineData?" + q.Encode()

	body, err := getBody(ctx, s.opts.client, s.Name(), u, map[string]string{"Referer": "https://finance.sina.com.cn"})
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, fmt.Errorf("sina %s: %w", code, ErrNoData)
	}

	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("sina decode: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sina %s: %w", code, ErrNoData)
	}
	return &model.RawPayload{Source: s.Name(), Rows: rows}, nil
}
