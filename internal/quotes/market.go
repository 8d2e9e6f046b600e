package quotes

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"MarketHarvest/internal/model"
)

// ErrUnknownMarket is returned for codes no heuristic recognizes, and for
// market values outside the supported set.
var ErrUnknownMarket = errors.New("unknown market")

// maxStrippedSZ is the largest value a zero-stripped Shenzhen main-board
// code (000xxx to 003xxx) can take.
const maxStrippedSZ = 3999

// Classification is the result of ClassifyMarket.
type Classification struct {
	Code      string
	Market    model.Market
	Ambiguous bool
	Reason    string
}

// ClassifyMarket infers the market of an instrument code. Explicit exchange
// markers win; otherwise 6 digits is A, fewer digits is HK and alphabetic is
// US. Short numeric codes that could also be a zero-stripped A-share code
// are returned as HK with Ambiguous set.
func ClassifyMarket(raw string) (Classification, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return Classification{}, fmt.Errorf("empty code: %w", ErrUnknownMarket)
	}

	for _, p := range []string{"SH", "SZ", "BJ"} {
		if rest, ok := strings.CutPrefix(s, p); ok && len(rest) == 6 && isDigits(rest) {
			return Classification{Code: rest, Market: model.MarketA}, nil
		}
	}
	for _, suf := range []string{".SS", ".SH", ".SZ", ".BJ"} {
		if rest, ok := strings.CutSuffix(s, suf); ok && len(rest) == 6 && isDigits(rest) {
			return Classification{Code: rest, Market: model.MarketA}, nil
		}
	}
	if rest, ok := strings.CutPrefix(s, "HK"); ok && rest != "" && isDigits(rest) {
		return Classification{Code: rest, Market: model.MarketHK}, nil
	}
	if rest, ok := strings.CutSuffix(s, ".HK"); ok && rest != "" && isDigits(rest) {
		return Classification{Code: rest, Market: model.MarketHK}, nil
	}

	if isDigits(s) {
		switch {
		case len(s) == 6:
			return Classification{Code: s, Market: model.MarketA}, nil
		case len(s) < 6:
			c := Classification{Code: s, Market: model.MarketHK}
			if n, err := strconv.Atoi(s); err == nil && n <= maxStrippedSZ {
				c.Ambiguous = true
				c.Reason = fmt.Sprintf("%s may also be A-share %06d with leading zeros dropped", s, n)
			}
			return c, nil
		}
		return Classification{}, fmt.Errorf("%d-digit code %q: %w", len(s), s, ErrUnknownMarket)
	}

	if isTicker(s) {
		return Classification{Code: s, Market: model.MarketUS}, nil
	}
	return Classification{}, fmt.Errorf("code %q: %w", raw, ErrUnknownMarket)
}

// ParseMarket validates an explicit market name.
func ParseMarket(s string) (model.Market, error) {
	m := model.Market(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("market %q: %w", s, ErrUnknownMarket)
	}
	return m, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// isTicker accepts letters first, then letters, digits, '.', '-' or a
// leading '^' for indices.
func isTicker(s string) bool {
	s = strings.TrimPrefix(s, "^")
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
		default:
			return false
		}
	}
	return true
}
