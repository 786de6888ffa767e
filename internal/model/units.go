package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// MicroScale is the number of micro-units per display unit.
const MicroScale = 1e6

// MicroDecimals is the precision the chain accepts for display amounts.
const MicroDecimals = 6

var maxMicro = decimal.NewFromInt(math.MaxInt64)

// ToDisplay converts a micro-unit amount string to display units with float64 division.
// Unparseable input yields 0.
func ToDisplay(micro string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(micro), 64)
	if err != nil || math.IsNaN(value) {
		return 0
	}
	return value / MicroScale
}

// ToMicro converts a display amount to micro-units, truncating anything below one
// micro-unit. Amounts beyond the uint64 range clamp to math.MaxUint64.
func ToMicro(amount float64) uint64 {
	if amount <= 0 || math.IsNaN(amount) {
		return 0
	}
	if math.IsInf(amount, 1) {
		return math.MaxUint64
	}
	micro := decimal.NewFromFloat(amount).Shift(MicroDecimals).Truncate(0).BigInt()
	if !micro.IsUint64() {
		return math.MaxUint64
	}
	return micro.Uint64()
}

// MicroString is ToMicro formatted for a chain message.
func MicroString(amount float64) string {
	return strconv.FormatUint(ToMicro(amount), 10)
}

// ParseAmount parses a user-entered decimal amount in display units.
func ParseAmount(input string) (float64, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", input, err)
	}
	if !value.IsPositive() {
		return 0, fmt.Errorf("amount must be positive: %s", input)
	}
	if value.Exponent() < -MicroDecimals {
		return 0, fmt.Errorf("amount has more than %d decimals: %s", MicroDecimals, input)
	}
	if value.Shift(MicroDecimals).GreaterThan(maxMicro) {
		return 0, fmt.Errorf("amount too large: %s", input)
	}
	amount, _ := value.Float64()
	return amount, nil
}

// FormatAmount prints a display amount with up to six decimals, trailing zeros removed.
func FormatAmount(amount float64) string {
	return decimal.NewFromFloat(amount).Round(MicroDecimals).String()
}
