package usage

import (
	"fmt"
	"strings"
)

// FormatDuration renders seconds as a compact span such as "2h 5m 3s".
// Leading zero units are omitted; zero and negative values render as "0s".
func FormatDuration(seconds int64) string {
	if seconds <= 0 {
		return "0s"
	}

	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60

	var parts []string
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if h > 0 || m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	parts = append(parts, fmt.Sprintf("%ds", s))
	return strings.Join(parts, " ")
}

// FormatHours renders seconds as fractional hours with two decimals.
func FormatHours(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%.2f", float64(seconds)/3600)
}
