// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatNumber formats an integer with thousands separators: 1234567 -> "1,234,567".
func FormatNumber(n int64) string {
	negative := n < 0
	s := strconv.FormatInt(n, 10)
	if negative {
		s = s[1:]
	}

	result := groupThousands(s)
	if negative {
		result = "-" + result
	}
	return result
}

// groupThousands inserts a comma every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPrice formats a dollar amount with two decimals and separators.
func FormatPrice(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "-"
	}
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	parts := strings.SplitN(str, ".", 2)
	result := "$" + groupThousands(parts[0]) + "." + parts[1]
	if negative {
		result = "-" + result
	}
	return result
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatIV formats an implied volatility already in percent units.
// Zero means the vendor had no figure.
func FormatIV(iv float64) string {
	if iv == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", iv)
}

// FormatDelta formats a delta to three places, "-" when the side is absent.
func FormatDelta(delta float64, present bool) string {
	if !present {
		return "-"
	}
	return fmt.Sprintf("%.3f", delta)
}

// FormatCompact abbreviates large counts: 15000 -> "15.0K", 2300000 -> "2.3M".
func FormatCompact(n int64) string {
	abs := n
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1_000_000_000)
	case abs >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case abs >= 10_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return FormatNumber(n)
	}
}
