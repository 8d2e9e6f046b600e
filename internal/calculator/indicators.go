// Package calculator derives technical figures from a normalized price series.
package calculator

import (
	"errors"
	"math"

	"MarketHarvest/internal/model"
)

var errInsufficient = errors.New("not enough records")

// SMA computes the simple moving average of the last period closes.
func SMA(recs []model.PriceRecord, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(recs) < period {
		return 0, errInsufficient
	}
	sum := 0.0
	for _, r := range recs[len(recs)-period:] {
		sum += r.Close
	}
	return sum / float64(period), nil
}

// RSI computes the Wilder-smoothed RSI over period. It needs period+1 records.
func RSI(recs []model.PriceRecord, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(recs) < period+1 {
		return 0, errInsufficient
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		g, l := move(recs[i-1].Close, recs[i].Close)
		avgGain += g
		avgLoss += l
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(recs); i++ {
		g, l := move(recs[i-1].Close, recs[i].Close)
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}

	if avgLoss == 0 {
		return 100, nil
	}
	return 100 - 100/(1+avgGain/avgLoss), nil
}

func move(prev, cur float64) (gain, loss float64) {
	d := cur - prev
	if d > 0 {
		return d, 0
	}
	return 0, -d
}

// Range returns the highest high and lowest low of the last window records.
// A window of 0 or more than len(recs) scans everything.
func Range(recs []model.PriceRecord, window int) (high, low float64, err error) {
	if len(recs) == 0 {
		return 0, 0, errInsufficient
	}
	start := 0
	if window > 0 && window < len(recs) {
		start = len(recs) - window
	}
	high, low = math.Inf(-1), math.Inf(1)
	for _, r := range recs[start:] {
		// absent high/low are stored as 0
		h, l := r.High, r.Low
		if h == 0 {
			h = r.Close
		}
		if l == 0 {
			l = r.Close
		}
		high = max(high, h)
		low = min(low, l)
	}
	return high, low, nil
}

// Position places current within [low, high] as 0..1. A flat range is 0.5.
func Position(current, high, low float64) float64 {
	if high <= low {
		return 0.5
	}
	return min(max((current-low)/(high-low), 0), 1)
}

// Summary is the digest shown alongside a quote reply. Figures that could
// not be computed are NaN.
type Summary struct {
	Last     float64
	MA5      float64
	MA20     float64
	RSI14    float64
	High     float64
	Low      float64
	Position float64
}

// Summarize computes the digest over ascending records.
func Summarize(recs []model.PriceRecord) (Summary, error) {
	if len(recs) == 0 {
		return Summary{}, errInsufficient
	}
	s := Summary{Last: recs[len(recs)-1].Close}
	s.MA5 = orNaN(SMA(recs, 5))
	s.MA20 = orNaN(SMA(recs, 20))
	s.RSI14 = orNaN(RSI(recs, 14))
	s.High, s.Low, _ = Range(recs, 0)
	s.Position = Position(s.Last, s.High, s.Low)
	return s, nil
}

func orNaN(v float64, err error) float64 {
	if err != nil {
		return math.NaN()
	}
	return v
}
