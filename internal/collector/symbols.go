package collector

import (
	"fmt"
	"strings"
)

// Exchange is an A-share listing venue.
type Exchange string

const (
	ExchangeSH Exchange = "sh"
	ExchangeSZ Exchange = "sz"
	ExchangeBJ Exchange = "bj"
)

// ExchangeOf resolves the venue of a 6-digit A-share code from its leading digit.
func ExchangeOf(code string) (Exchange, error) {
	if len(code) != 6 {
		return "", fmt.Errorf("a-share code %q: want 6 digits", code)
	}
	switch code[0] {
	case '6', '9':
		return ExchangeSH, nil
	case '0', '2', '3':
		return ExchangeSZ, nil
	case '4', '8':
		return ExchangeBJ, nil
	}
	return "", fmt.Errorf("a-share code %q: unknown exchange prefix", code)
}

// padHK left-pads a Hong Kong code with zeros to width.
func padHK(code string, width int) string {
	code = strings.TrimLeft(code, "0")
	if len(code) >= width {
		return code
	}
	return strings.Repeat("0", width-len(code)) + code
}
