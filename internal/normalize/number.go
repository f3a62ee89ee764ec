package normalize

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNotNumeric is returned when a cell has content that is not a number
var ErrNotNumeric = errors.New("not numeric")

// Cells that mean "no value" rather than zero
var absentTokens = map[string]bool{
	"":       true,
	"-":      true,
	"--":     true,
	"\u2014": true,
	"\u2013": true,
	"n/a":    true,
	"na":     true,
	"none":   true,
	"null":   true,
	"?":      true,
}

var unitTokens = []string{"BTC", "USD", "₿", "$", "€", "£", "%"}

var magnitudes = map[byte]decimal.Decimal{
	'K': decimal.New(1, 3),
	'M': decimal.New(1, 6),
	'B': decimal.New(1, 9),
	'T': decimal.New(1, 12),
}

// Number parses a numeric cell.
// It returns (nil, nil) for absent cells and (nil, ErrNotNumeric) for anything else that is not a number.
func Number(raw string) (*float64, error) {
	d, ok, err := Decimal(raw)
	if err != nil || !ok {
		return nil, err
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, fmt.Errorf("%w: %q overflows float64", ErrNotNumeric, raw)
	}
	return &f, nil
}

// Decimal parses a numeric cell without going through float64.
// ok is false when the cell is absent.
func Decimal(raw string) (decimal.Decimal, bool, error) {
	s := Label(raw)
	if absentTokens[strings.ToLower(s)] {
		return decimal.Zero, false, nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	for _, unit := range unitTokens {
		s = stripUnit(s, unit)
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ',', '\'', ' ', '\u00a0', '\u2009', '\u202f':
			return -1
		case '\u2212':
			return '-'
		}
		return r
	}, s)
	s = strings.TrimPrefix(s, "+")

	if absentTokens[strings.ToLower(s)] {
		return decimal.Zero, false, nil
	}

	multiplier := decimal.New(1, 0)
	if m, ok := magnitudes[upper(s[len(s)-1])]; ok {
		multiplier = m
		s = s[:len(s)-1]
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("%w: %q", ErrNotNumeric, raw)
	}
	d = d.Mul(multiplier)
	if negative {
		d = d.Neg()
	}
	return d, true, nil
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

// stripUnit removes a unit token in its upper and lower case spelling
func stripUnit(s, token string) string {
	s = strings.ReplaceAll(s, token, "")
	return strings.ReplaceAll(s, strings.ToLower(token), "")
}
