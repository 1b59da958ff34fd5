package dashboard

import (
	"fmt"
	"math"
	"strings"
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	if n < 0 {
		return "-" + FormatInt(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPrice formats a price with two decimals, or "-" when unknown.
func FormatPrice(p float64) string {
	if p == 0 || math.IsNaN(p) {
		return "-"
	}
	return fmt.Sprintf("%.2f", p)
}

// FormatAmount formats a rupee amount with comma separators and two
// decimals, e.g. "-1,234.50".
func FormatAmount(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	cents := int(math.Round(v * 100))
	return fmt.Sprintf("%s%s.%02d", sign, FormatInt(cents/100), cents%100)
}

// FormatPnL is FormatAmount with an explicit "+" on gains.
func FormatPnL(v float64) string {
	if v > 0 {
		return "+" + FormatAmount(v)
	}
	return FormatAmount(v)
}
