package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money stores an amount in minor units (cents, paise).
type Money int64

// MaxMoney bounds every amount so that adding two of them cannot overflow int64.
const MaxMoney = Money(math.MaxInt64 / 100)

// ErrAmountOutOfRange is returned when an amount or a sum exceeds MaxMoney.
var ErrAmountOutOfRange = errors.New("amount out of range")

var (
	displayPrinter = message.NewPrinter(language.English)
	// Plain decimals, optionally grouped by thousands: "1200", "1200.5", "1,200.50".
	amountPattern = regexp.MustCompile(`^[+-]?(\d{1,3}(,\d{3})+|\d+)(\.\d+)?$`)
	maxMinor      = decimal.NewFromInt(int64(MaxMoney))
)

// ParseMoney parses a decimal string such as "1200", "1200.5" or "1,200.50".
// Sub-cent digits are rounded half away from zero.
func ParseMoney(raw string) (Money, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("amount required")
	}
	if !amountPattern.MatchString(raw) {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal converts a major-unit decimal to minor units.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	minor := d.Shift(2).Round(0)
	if minor.Abs().GreaterThan(maxMinor) {
		return 0, fmt.Errorf("%w: %s", ErrAmountOutOfRange, d.String())
	}
	return Money(minor.IntPart()), nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// Add returns m+o, failing when the sum leaves the supported range.
func (m Money) Add(o Money) (Money, error) {
	sum := m + o
	if m > MaxMoney || m < -MaxMoney || o > MaxMoney || o < -MaxMoney || sum > MaxMoney || sum < -MaxMoney {
		return 0, ErrAmountOutOfRange
	}
	return sum, nil
}

// String formats the amount with exactly two decimals, e.g. "600.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Display formats the amount with grouping for human readers, e.g. "INR 1,200.00".
func (m Money) Display(currency string) string {
	d := m.Decimal()
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	whole := d.Truncate(0)
	cents := d.Sub(whole).Shift(2).IntPart()
	out := fmt.Sprintf("%s%s.%02d", sign, displayPrinter.Sprintf("%d", whole.IntPart()), cents)
	if currency == "" {
		return out
	}
	return currency + " " + out
}

// MarshalJSON renders the amount as a two-decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts either a JSON number or a decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = 0
		return nil
	}
	raw := string(data)
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		raw = s
	}
	parsed, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
