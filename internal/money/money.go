// Package money parses and formats currency amounts entered by users.
//
// Amounts are always carried as decimal.Decimal rounded to cents, never as
// floats, so sums shown on summaries match the rows they were computed from.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when the input is not a number.
var ErrInvalidAmount = errors.New("invalid amount")

// Range bounds an accepted amount, inclusive on both ends.
type Range struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// DefaultRange accepts amounts from zero up to one billion.
var DefaultRange = Range{
	Min: decimal.Zero,
	Max: decimal.NewFromInt(1_000_000_000),
}

// RangeError reports a parsed amount outside the accepted range.
type RangeError struct {
	Value decimal.Decimal
	Range Range
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("amount %s must be between %s and %s",
		e.Value.StringFixed(2), e.Range.Min.StringFixed(2), e.Range.Max.StringFixed(2))
}

var currencySymbols = []string{"$", "£", "€"}

// Parse converts raw user input such as "1,234.5" or "$ 300" into an amount
// rounded to two decimal places. An empty input parses as zero. Values outside
// r are rejected with a *RangeError; they are never clamped.
func Parse(raw string, r Range) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return checkRange(decimal.Zero, r)
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimSpace(s[1:])
	}
	for _, sym := range currencySymbols {
		if strings.HasPrefix(s, sym) {
			s = strings.TrimSpace(strings.TrimPrefix(s, sym))
			break
		}
	}
	s = strings.NewReplacer(",", "", " ", "").Replace(s)
	if s == "" || strings.ContainsAny(s, "+-eE") {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if neg {
		d = d.Neg()
	}
	return checkRange(d.Round(2), r)
}

func checkRange(d decimal.Decimal, r Range) (decimal.Decimal, error) {
	if d.LessThan(r.Min) || d.GreaterThan(r.Max) {
		return decimal.Zero, &RangeError{Value: d, Range: r}
	}
	return d, nil
}

// Format renders d with two decimals and comma thousands separators,
// e.g. 1234.5 becomes "1,234.50".
func Format(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// Sum adds all amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Percent returns part/whole*100 rounded to two places, or zero when whole is
// not positive.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)).Round(2)
}
