package rollup

import "errors"

var (
	// ErrNoTransactions is returned by Build when there is nothing to roll up.
	ErrNoTransactions = errors.New("rollup: no transactions")

	// ErrNoRollup is returned when an append runs before any batch build.
	ErrNoRollup = errors.New("rollup: table is empty; run a batch build first")

	// ErrRollupExists is returned by a batch build over a non-empty table
	// unless a rebuild was requested.
	ErrRollupExists = errors.New("rollup: table already populated; append instead or rebuild")

	// ErrRollupGaps is returned when the persisted rollup is missing calendar
	// dates or (date, product) cells, which would make the incremental
	// running totals and window sums wrong.
	ErrRollupGaps = errors.New("rollup: persisted history has date gaps")

	// ErrCalendarExhausted is returned when the calendar has no date after
	// the rollup's last date.
	ErrCalendarExhausted = errors.New("rollup: calendar has no date after the rollup")
)
