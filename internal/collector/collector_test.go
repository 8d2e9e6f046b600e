package collector_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"MarketHarvest/internal/collector"
	"MarketHarvest/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testRange() model.DateRange {
	return model.DateRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func serve(t *testing.T, check func(r *http.Request), body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTencentSource_Fetch(t *testing.T) {
	t.Parallel()

	// Arrange: a server answering in the qfqday layout
	srv := serve(t, func(r *http.Request) {
		assert.Equal(t, "/appstock/app/fqkline/get", r.URL.Path)
		assert.Equal(t, "sh600519,day,2024-01-01,2024-01-31,550,qfq", r.URL.Query().Get("param"))
	}, `{"code":0,"msg":"","data":{"sh600519":{"qfqday":[
		["2024-01-02","1700.00","1685.00","1710.00","1680.00","12345.000"],
		["2024-01-03","1685.00","1690.50","1695.00","1670.00","11000.000"]]}}}`)
	src := collector.NewTencentSource(collector.WithBaseURL(srv.URL))

	// Act
	p, err := src.Fetch(t.Context(), "600519", model.MarketA, testRange())

	// Assert
	require.NoError(t, err)
	require.Len(t, p.Rows, 2)
	assert.Equal(t, "tencent", p.Source)
	assert.Equal(t, "2024-01-03", p.Rows[1]["date"])
	assert.Equal(t, "1690.50", p.Rows[1]["close"])
	assert.Equal(t, "1695.00", p.Rows[1]["high"])
}

func TestTencentSource_FallsBackToDayAndHKSymbol(t *testing.T) {
	t.Parallel()

	srv := serve(t, func(r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Query().Get("param"), "hk00700,day,"))
	}, `{"code":0,"data":{"hk00700":{"day":[["2024-01-02","300","301","305","299","100"]]}}}`)
	src := collector.NewTencentSource(collector.WithBaseURL(srv.URL))

	p, err := src.Fetch(t.Context(), "700", model.MarketHK, testRange())

	require.NoError(t, err)
	require.Len(t, p.Rows, 1)
}

func TestTencentSource_NoData(t *testing.T) {
	t.Parallel()

	srv := serve(t, nil, `{"code":0,"data":{}}`)
	src := collector.NewTencentSource(collector.WithBaseURL(srv.URL))

	_, err := src.Fetch(t.Context(), "600519", model.MarketA, testRange())

	require.ErrorIs(t, err, collector.ErrNoData)
}

func TestEastmoneySource_Fetch(t *testing.T) {
	t.Parallel()

	srv := serve(t, func(r *http.Request) {
		assert.Equal(t, "0.000001", r.URL.Query().Get("secid"))
		assert.Equal(t, "20240101", r.URL.Query().Get("beg"))
	}, `{"rc":0,"data":{"code":"000001","klines":[
		"2024-01-02,9.39,9.21,9.42,9.21,1158366,1075742252.45,-1.92",
		"2024-01-03,9.19,9.20,9.22,9.15,733610,673673613.43,-0.11"]}}`)
	src := collector.NewEastmoneySource(collector.WithBaseURL(srv.URL))

	p, err := src.Fetch(t.Context(), "000001", model.MarketA, testRange())

	require.NoError(t, err)
	require.Len(t, p.Rows, 2)
	assert.Equal(t, "2024-01-02", p.Rows[0]["日期"])
	assert.Equal(t, "-1.92", p.Rows[0]["涨跌幅"])
}

func TestEastmoneySource_RejectsOtherMarkets(t *testing.T) {
	t.Parallel()

	src := collector.NewEastmoneySource(collector.WithBaseURL("http://127.0.0.1:0"))
	_, err := src.Fetch(t.Context(), "AAPL", model.MarketUS, testRange())
	require.Error(t, err)
}

func TestSinaSource_Fetch(t *testing.T) {
	t.Parallel()

	srv := serve(t, func(r *http.Request) {
		assert.Equal(t, "sz300750", r.URL.Query().Get("symbol"))
		assert.NotEmpty(t, r.Header.Get("Referer"))
	}, `[{"day":"2024-01-02","open":"160.000","high":"161.500","low":"157.000","close":"158.280","volume":"27110470"}]`)
	src := collector.NewSinaSource(collector.WithBaseURL(srv.URL))

	p, err := src.Fetch(t.Context(), "300750", model.MarketA, testRange())

	require.NoError(t, err)
	require.Len(t, p.Rows, 1)
	assert.Equal(t, "158.280", p.Rows[0]["close"])
}

func TestSinaSource_NullBody(t *testing.T) {
	t.Parallel()

	srv := serve(t, nil, "null")
	src := collector.NewSinaSource(collector.WithBaseURL(srv.URL))

	_, err := src.Fetch(t.Context(), "600000", model.MarketA, testRange())

	require.ErrorIs(t, err, collector.ErrNoData)
}

func TestNeteaseSource_Fetch(t *testing.T) {
	t.Parallel()

	srv := serve(t, func(r *http.Request) {
		assert.Equal(t, "/data/hs/kline/day/history/0600000.json", r.URL.Path)
	}, `{"symbol":"600000","data":[["20240102",7.5,7.45,7.52,7.41,220000,-0.67]]}`)
	src := collector.NewNeteaseSource(collector.WithBaseURL(srv.URL))

	p, err := src.Fetch(t.Context(), "600000", model.MarketA, testRange())

	require.NoError(t, err)
	require.Len(t, p.Rows, 1)
	assert.Equal(t, "20240102", p.Rows[0]["日期"])
	assert.Equal(t, 7.45, p.Rows[0]["收盘"])
}

func TestYahooSource_Fetch(t *testing.T) {
	t.Parallel()

	srv := serve(t, func(r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/0700.HK", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
	}, `{"chart":{"result":[{"timestamp":[1704159000,1704245400],
		"indicators":{"quote":[{"open":[300.0,null],"high":[305.0,null],"low":[299.0,null],
		"close":[301.0,null],"volume":[1000,null]}]}}],"error":null}}`)
	src := collector.NewYahooSource(collector.WithBaseURL(srv.URL))

	p, err := src.Fetch(t.Context(), "00700", model.MarketHK, testRange())

	require.NoError(t, err)
	require.Len(t, p.Rows, 2)
	assert.Equal(t, 301.0, p.Rows[0]["close"])
	assert.Nil(t, p.Rows[1]["close"])
}

func TestYahooSource_APIError(t *testing.T) {
	t.Parallel()

	srv := serve(t, nil, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`)
	src := collector.NewYahooSource(collector.WithBaseURL(srv.URL))

	_, err := src.Fetch(t.Context(), "ZZZZ", model.MarketUS, testRange())

	require.ErrorContains(t, err, "delisted")
}

func TestWithHTTPClient_StatusAndTransportErrors(t *testing.T) {
	t.Parallel()

	// Arrange: a mock client that fails once at transport level, then returns 503
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	gomock.InOrder(
		httpClient.EXPECT().Do(gomock.Any()).Return(nil, errors.New("connection reset")),
		httpClient.EXPECT().Do(gomock.Any()).
			DoAndReturn(func(req *http.Request) (*http.Response, error) {
				require.Equal(t, "Mozilla/5.0", req.Header.Get("User-Agent"))
				return &http.Response{
					StatusCode: http.StatusServiceUnavailable,
					Body:       io.NopCloser(strings.NewReader("busy")),
				}, nil
			}),
	)
	src := collector.NewSinaSource(collector.WithHTTPClient(httpClient))

	// Act + Assert
	_, err := src.Fetch(t.Context(), "600000", model.MarketA, testRange())
	require.ErrorContains(t, err, "connection reset")

	_, err = src.Fetch(t.Context(), "600000", model.MarketA, testRange())
	require.ErrorContains(t, err, "status 503")
}

func TestExchangeOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code    string
		want    collector.Exchange
		wantErr bool
	}{
		{"600519", collector.ExchangeSH, false},
		{"688981", collector.ExchangeSH, false},
		{"000001", collector.ExchangeSZ, false},
		{"300750", collector.ExchangeSZ, false},
		{"830799", collector.ExchangeBJ, false},
		{"12345", "", true},
		{"500001", "", true},
	}
	for _, tt := range tests {
		got, err := collector.ExchangeOf(tt.code)
		if tt.wantErr {
			assert.Error(t, err, tt.code)
			continue
		}
		assert.NoError(t, err, tt.code)
		assert.Equal(t, tt.want, got, tt.code)
	}
}
