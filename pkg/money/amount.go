package money

import (
	"fmt"
	"strconv"
	"strings"
)

// Amounts are stored as int64 minor units (cents). KES 1,500.50 is 150050.
// All parsing goes through string manipulation so no float ever touches a
// monetary value.

const decimals = 2

// ToMinorUnits converts a human-readable amount string to minor units.
// "1500.5" → 150050. Negative amounts and more than two decimal places
// are rejected; direction is always derived from the transaction kind.
func ToMinorUnits(amountStr string) (int64, error) {
	amountStr = strings.TrimSpace(amountStr)
	if amountStr == "" {
		return 0, fmt.Errorf("amount is required")
	}

	if strings.HasPrefix(amountStr, "-") || strings.HasPrefix(amountStr, "+") {
		return 0, fmt.Errorf("amount must be an unsigned magnitude")
	}

	parts := strings.Split(amountStr, ".")
	if len(parts) > 2 {
		return 0, fmt.Errorf("invalid amount format")
	}

	intPart := parts[0]
	if intPart == "" {
		intPart = "0"
	}

	decPart := ""
	if len(parts) == 2 {
		decPart = parts[1]
	}
	if len(decPart) > decimals {
		return 0, fmt.Errorf("amount has more than %d decimal places", decimals)
	}
	decPart = decPart + strings.Repeat("0", decimals-len(decPart))

	combined := strings.TrimLeft(intPart+decPart, "0")
	if combined == "" {
		return 0, nil
	}

	value, err := strconv.ParseInt(combined, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount format")
	}

	return value, nil
}

// FromMinorUnits converts minor units back to a human-readable string.
// 150050 → "1500.50", -50 → "-0.50".
func FromMinorUnits(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}

	str := strconv.FormatInt(v, 10)
	for len(str) <= decimals {
		str = "0" + str
	}

	pos := len(str) - decimals
	return sign + str[:pos] + "." + str[pos:]
}
