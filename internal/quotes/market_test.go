package quotes_test

import (
	"testing"

	"MarketHarvest/internal/model"
	"MarketHarvest/internal/quotes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyMarket(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in        string
		code      string
		market    model.Market
		ambiguous bool
	}{
		{"600519", "600519", model.MarketA, false},
		{"sz000001", "000001", model.MarketA, false},
		{"300750.SZ", "300750", model.MarketA, false},
		{"688981.ss", "688981", model.MarketA, false},
		{"00700", "00700", model.MarketHK, true},
		{"9988", "9988", model.MarketHK, false},
		{"09988", "09988", model.MarketHK, false},
		{"5", "5", model.MarketHK, true},
		{"hk00700", "00700", model.MarketHK, false},
		{"0700.HK", "0700", model.MarketHK, false},
		{"aapl", "AAPL", model.MarketUS, false},
		{"BRK-B", "BRK-B", model.MarketUS, false},
		{"^GSPC", "^GSPC", model.MarketUS, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := quotes.ClassifyMarket(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.code, c.Code)
			assert.Equal(t, tt.market, c.Market)
			assert.Equal(t, tt.ambiguous, c.Ambiguous)
			if c.Ambiguous {
				assert.NotEmpty(t, c.Reason)
			}
		})
	}
}

func TestClassifyMarket_Unknown(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "1234567", "60-0519", "中国平安"} {
		_, err := quotes.ClassifyMarket(in)
		assert.ErrorIs(t, err, quotes.ErrUnknownMarket, in)
	}
}

func TestParseMarket(t *testing.T) {
	t.Parallel()

	m, err := quotes.ParseMarket("hk")
	require.NoError(t, err)
	assert.Equal(t, model.MarketHK, m)

	_, err = quotes.ParseMarket("EU")
	assert.ErrorIs(t, err, quotes.ErrUnknownMarket)
}
