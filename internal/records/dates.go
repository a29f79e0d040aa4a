package records

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateLayout is the canonical civil-date format used in outputs and SQL binds.
const DateLayout = "2006-01-02"

// Day truncates t to its civil date at midnight UTC. The wall-clock date of t
// is preserved; the location is discarded rather than converted, so an order
// stamped 2003-02-24 23:30 in any zone stays on 2003-02-24.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays moves a civil date by n calendar days.
func AddDays(day time.Time, n int) time.Time {
	return Day(day).AddDate(0, 0, n)
}

// DaysBetween returns the number of calendar days from a to b (b-a).
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// DateRange enumerates every civil date in [from, to], inclusive. It returns
// nil when to precedes from.
func DateRange(from, to time.Time) []time.Time {
	from, to = Day(from), Day(to)
	if to.Before(from) {
		return nil
	}
	out := make([]time.Time, 0, DaysBetween(from, to)+1)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// SortDays sorts and deduplicates civil dates in place and returns the
// shortened slice.
func SortDays(days []time.Time) []time.Time {
	for i := range days {
		days[i] = Day(days[i])
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	out := days[:0]
	for i, d := range days {
		if i > 0 && d.Equal(out[len(out)-1]) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// orderDateLayouts are tried in order by ParseOrderDate. The first matches the
// dataset's own "2/24/2003 0:00" rendering.
var orderDateLayouts = []string{
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	DateLayout,
}

// ParseOrderDate parses an order timestamp in any of the layouts the dataset
// and common exports use. The result is in UTC.
func ParseOrderDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range orderDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
