package collector

import (
	"context"
	"errors"

	"MarketHarvest/internal/model"
)

//go:generate mockgen -package=collector_test -destination=mock_http_client_test.go -source=http.go HTTPClient
//go:generate mockgen -package=quotes_test -destination=../quotes/mock_source_test.go -source=source.go Source

// ErrNoData is returned when a provider answered but had nothing usable.
var ErrNoData = errors.New("no data returned")

// Source fetches raw daily bars from one provider.
type Source interface {
	Name() string
	Markets() []model.Market
	Fetch(ctx context.Context, code string, market model.Market, rng model.DateRange) (*model.RawPayload, error)
}

// Supports reports whether src serves market m.
func Supports(src Source, m model.Market) bool {
	for _, sm := range src.Markets() {
		if sm == m {
			return true
		}
	}
	return false
}
