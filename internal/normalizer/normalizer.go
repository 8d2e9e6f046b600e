// Package normalizer turns heterogeneous provider rows into canonical,
// date-ordered price records. It performs no I/O.
package normalizer

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"MarketHarvest/internal/model"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
)

const (
	fieldDate   = "date"
	fieldOpen   = "open"
	fieldHigh   = "high"
	fieldLow    = "low"
	fieldClose  = "close"
	fieldVolume = "volume"
	fieldPct    = "percentChange"
)

// aliases maps provider field names onto canonical ones.
var aliases = map[string]string{
	"date":          fieldDate,
	"day":           fieldDate,
	"日期":            fieldDate,
	"timestamp":     fieldDate,
	"trade_date":    fieldDate,
	"open":          fieldOpen,
	"开盘":            fieldOpen,
	"high":          fieldHigh,
	"最高":            fieldHigh,
	"low":           fieldLow,
	"最低":            fieldLow,
	"close":         fieldClose,
	"收盘":            fieldClose,
	"volume":        fieldVolume,
	"vol":           fieldVolume,
	"成交量":           fieldVolume,
	"percentChange": fieldPct,
	"pct_chg":       fieldPct,
	"zdf":           fieldPct,
	"涨跌幅":           fieldPct,
}

var placeholders = map[string]struct{}{
	"":     {},
	"-":    {},
	"--":   {},
	"null": {},
	"None": {},
	"NaN":  {},
	"nan":  {},
}

var dateLayouts = []string{
	"2006-01-02",
	"20060102",
	"2006/01/02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

var (
	errAbsent   = errors.New("absent")
	hundred     = decimal.NewFromInt(100)
	epochMillis = 1e11
)

// Report counts what happened to the input rows.
type Report struct {
	Rows       int
	Dropped    int
	Duplicates int
}

type row struct {
	rec    model.PriceRecord
	hasPct bool
}

// Normalize converts a raw payload into records that are unique by date and
// sorted ascending. Rows that fail to parse are skipped and counted.
func Normalize(p *model.RawPayload) ([]model.PriceRecord, Report) {
	rep := Report{}
	if p.Empty() {
		return []model.PriceRecord{}, rep
	}
	rep.Rows = len(p.Rows)

	byDate := make(map[time.Time]int, len(p.Rows))
	rows := make([]row, 0, len(p.Rows))
	for _, raw := range p.Rows {
		r, err := parseRow(raw)
		if err != nil {
			rep.Dropped++
			continue
		}
		if i, ok := byDate[r.rec.Date]; ok {
			rows[i] = r
			rep.Duplicates++
			continue
		}
		byDate[r.rec.Date] = len(rows)
		rows = append(rows, r)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].rec.Date.Before(rows[j].rec.Date) })

	out := make([]model.PriceRecord, len(rows))
	for i, r := range rows {
		if !r.hasPct {
			r.rec.PercentChange = 0
			if i > 0 {
				r.rec.PercentChange = PercentChange(rows[i-1].rec.Close, r.rec.Close)
			}
		}
		out[i] = r.rec
	}
	return out, rep
}

// PercentChange returns (cur/prev - 1) * 100 rounded to two decimals, or 0
// when prev is zero.
func PercentChange(prev, cur float64) float64 {
	if prev == 0 {
		return 0
	}
	p := decimal.NewFromFloat(prev)
	c := decimal.NewFromFloat(cur)
	return c.Sub(p).Div(p).Mul(hundred).Round(2).InexactFloat64()
}

func parseRow(raw map[string]any) (row, error) {
	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		if canon, ok := aliases[k]; ok {
			fields[canon] = v
		}
	}

	var r row
	date, err := parseDate(fields[fieldDate])
	if err != nil {
		return r, fmt.Errorf("date: %w", err)
	}
	r.rec.Date = date

	if r.rec.Close, err = number(fields[fieldClose]); err != nil {
		return r, fmt.Errorf("close: %w", err)
	}

	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{fieldOpen, &r.rec.Open},
		{fieldHigh, &r.rec.High},
		{fieldLow, &r.rec.Low},
	} {
		v, err := number(fields[f.name])
		if errors.Is(err, errAbsent) {
			continue
		}
		if err != nil {
			return r, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}

	vol, err := number(fields[fieldVolume])
	switch {
	case errors.Is(err, errAbsent):
	case err != nil:
		return r, fmt.Errorf("volume: %w", err)
	default:
		r.rec.Volume = int64(math.Round(vol))
	}

	pct, err := number(fields[fieldPct])
	switch {
	case errors.Is(err, errAbsent):
	case err != nil:
		return r, fmt.Errorf("percentChange: %w", err)
	default:
		r.rec.PercentChange = decimal.NewFromFloat(pct).Round(2).InexactFloat64()
		r.hasPct = true
	}
	return r, nil
}

func isPlaceholder(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		_, ok := placeholders[strings.TrimSpace(t)]
		return ok
	case float64:
		return math.IsNaN(t) || math.IsInf(t, 0)
	case float32:
		return math.IsNaN(float64(t)) || math.IsInf(float64(t), 0)
	}
	return false
}

func number(v any) (float64, error) {
	if isPlaceholder(v) {
		return 0, errAbsent
	}
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return 0, err
		}
		return d.InexactFloat64(), nil
	case string:
		d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(t), ",", ""))
		if err != nil {
			return 0, err
		}
		return d.InexactFloat64(), nil
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

func parseDate(v any) (time.Time, error) {
	if isPlaceholder(v) {
		return time.Time{}, errAbsent
	}
	switch t := v.(type) {
	case time.Time:
		return model.Day(t), nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if d, err := time.Parse(layout, s); err == nil {
				return model.Day(d), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	}
	n, err := number(v)
	if err != nil {
		return time.Time{}, err
	}
	if n > epochMillis {
		return model.Day(time.UnixMilli(int64(n)).UTC()), nil
	}
	return model.Day(time.Unix(int64(n), 0).UTC()), nil
}
