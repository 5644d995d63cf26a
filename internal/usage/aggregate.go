package usage

import (
	"time"
)

// MonthLayout is the time layout of a month bucket key.
const MonthLayout = "2006-01"

// MonthKey returns the YYYY-MM bucket that t falls into in loc.
func MonthKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(MonthLayout)
}

// AddToMonth returns a copy of totals with delta added to month. A negative
// delta is treated as zero, but the key is still created.
func AddToMonth(totals map[string]int64, month string, delta int64) map[string]int64 {
	out := make(map[string]int64, len(totals)+1)
	for k, v := range totals {
		out[k] = v
	}
	if delta < 0 {
		delta = 0
	}
	out[month] += delta
	return out
}
