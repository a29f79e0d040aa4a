package sqldb

import (
	"fmt"
	"strings"
	"time"

	"salesrollup/internal/records"
)

// nullDay scans a DATE column. Drivers return time.Time, text or bytes
// depending on the backend and the declared column type.
type nullDay struct {
	Time  time.Time
	Valid bool
}

func (d *nullDay) Scan(v any) error {
	d.Time, d.Valid = time.Time{}, false
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		d.Time, d.Valid = records.Day(t), true
		return nil
	case []byte:
		return d.parse(string(t))
	case string:
		return d.parse(t)
	default:
		return fmt.Errorf("sqldb: cannot scan %T into a date", v)
	}
}

func (d *nullDay) parse(s string) error {
	s = strings.TrimSpace(s)
	if len(s) >= len(records.DateLayout) {
		s = s[:len(records.DateLayout)]
	}
	t, err := time.Parse(records.DateLayout, s)
	if err != nil {
		return fmt.Errorf("sqldb: parse date %q: %w", s, err)
	}
	d.Time, d.Valid = t, true
	return nil
}

// nullTimestamp scans a TIMESTAMP column.
type nullTimestamp struct {
	Time  time.Time
	Valid bool
}

func (ts *nullTimestamp) Scan(v any) error {
	ts.Time, ts.Valid = time.Time{}, false
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		ts.Time, ts.Valid = t.UTC(), true
		return nil
	case []byte:
		return ts.parse(string(t))
	case string:
		return ts.parse(t)
	default:
		return fmt.Errorf("sqldb: cannot scan %T into a timestamp", v)
	}
}

func (ts *nullTimestamp) parse(s string) error {
	t, err := records.ParseOrderDate(s)
	if err != nil {
		return fmt.Errorf("sqldb: parse timestamp: %w", err)
	}
	ts.Time, ts.Valid = t, true
	return nil
}
