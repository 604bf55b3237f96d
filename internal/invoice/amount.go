package invoice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxUnits is the largest integer part whose cents still fit in an int64.
const maxUnits = (math.MaxInt64 - 99) / 100

// Amount is a monetary value held in minor units (cents).
//
// Amounts are parsed from the exact decimal literal (JSON number or string) so that
// 119000.00 is always 11900000 cents, independent of float rounding or locale.
type Amount int64

// NewAmount builds an amount from whole units and cents, e.g. NewAmount(119000, 0).
func NewAmount(units int64, cents int64) Amount {
	if units < 0 {
		return Amount(units*100 - cents)
	}
	return Amount(units*100 + cents)
}

// ParseAmount parses a decimal literal with at most two fractional digits.
// A dot is the only accepted decimal separator; grouping separators are rejected.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		return 0, fmt.Errorf("invalid amount %q: missing integer part", s)
	}
	if hasFrac && (len(frac) == 0 || len(frac) > 2) {
		return 0, fmt.Errorf("invalid amount %q: expected at most two decimal digits", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || strings.ContainsAny(whole, "+-") {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if units > maxUnits {
		return 0, fmt.Errorf("invalid amount %q: out of range", s)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || strings.ContainsAny(frac, "+-") {
		return 0, fmt.Errorf("invalid amount %q", s)
	}

	v := units*100 + cents
	if negative {
		v = -v
	}
	return Amount(v), nil
}

// Units returns the integer part of the amount.
func (a Amount) Units() int64 { return int64(a) / 100 }

// Cents returns the fractional part of the amount as a value in [0, 99].
func (a Amount) Cents() int64 {
	c := int64(a) % 100
	if c < 0 {
		c = -c
	}
	return c
}

// IsNegative reports whether the amount is below zero.
func (a Amount) IsNegative() bool { return a < 0 }

// String renders the amount with exactly two decimals and a dot separator.
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON emits the amount as a JSON number with two decimals.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}

	literal := string(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		literal = s
	}

	v, err := ParseAmount(literal)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
