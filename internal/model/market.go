package model

import "time"

// Market identifies the exchange group an instrument code belongs to.
type Market string

const (
	MarketA  Market = "A"  // Shanghai, Shenzhen and Beijing A-shares
	MarketHK Market = "HK" // Hong Kong
	MarketUS Market = "US" // US listings
)

// Markets lists every supported market in display order.
var Markets = []Market{MarketA, MarketHK, MarketUS}

// Valid reports whether m is one of the supported markets.
func (m Market) Valid() bool {
	switch m {
	case MarketA, MarketHK, MarketUS:
		return true
	}
	return false
}

// PriceRecord is one canonical daily bar.
type PriceRecord struct {
	Date          time.Time `json:"date"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	Volume        int64     `json:"volume"`
	PercentChange float64   `json:"percentChange"`
}

// DateRange is an inclusive calendar-day range. A zero bound is open.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// LastDays returns the range covering the n days up to and including now.
func LastDays(now time.Time, n int) DateRange {
	end := Day(now)
	return DateRange{Start: end.AddDate(0, 0, -n), End: end}
}

// Contains reports whether the calendar day of t falls inside r.
func (r DateRange) Contains(t time.Time) bool {
	d := Day(t)
	if !r.Start.IsZero() && d.Before(Day(r.Start)) {
		return false
	}
	if !r.End.IsZero() && d.After(Day(r.End)) {
		return false
	}
	return true
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PriceSeries is the result of one quote query. Records are unique by date
// and strictly ascending. A series with no records means no source had data.
type PriceSeries struct {
	Code      string        `json:"code"`
	Market    Market        `json:"market"`
	Range     DateRange     `json:"range"`
	Source    string        `json:"source,omitempty"`
	Records   []PriceRecord `json:"records"`
	FetchedAt time.Time     `json:"fetchedAt"`
}

// EmptySeries returns the explicit "no data available" result.
func EmptySeries(code string, market Market, rng DateRange) *PriceSeries {
	return &PriceSeries{Code: code, Market: market, Range: rng, Records: []PriceRecord{}}
}

// Available reports whether the series carries data.
func (s *PriceSeries) Available() bool {
	return s != nil && len(s.Records) > 0
}

// Clone returns a copy that shares no record storage with s.
func (s *PriceSeries) Clone() *PriceSeries {
	if s == nil {
		return nil
	}
	c := *s
	c.Records = append([]PriceRecord(nil), s.Records...)
	if c.Records == nil {
		c.Records = []PriceRecord{}
	}
	return &c
}

// Last returns up to n most recent records.
func (s *PriceSeries) Last(n int) []PriceRecord {
	if s == nil || n <= 0 {
		return nil
	}
	if len(s.Records) <= n {
		return s.Records
	}
	return s.Records[len(s.Records)-n:]
}

// SourceDescriptor describes a registered provider. It is fixed at startup.
type SourceDescriptor struct {
	Name     string
	Markets  []Market
	Priority int // position in the market's fallback order, 0 first
}

// RawPayload is an unnormalized provider response. Rows keep the
// provider's own field names and value types.
type RawPayload struct {
	Source string
	Rows   []map[string]any
}

// Empty reports whether the payload has no rows.
func (p *RawPayload) Empty() bool {
	return p == nil || len(p.Rows) == 0
}
