package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"salesrollup/internal/export"
	"salesrollup/internal/ingest"
	"salesrollup/internal/records"
)

func newLoadCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Load the sales CSV into the store and seed the calendar",
		Long: `Parse the sales CSV, insert every new transaction (rows already loaded are
skipped by row hash) and seed the d_date calendar over the loaded range.`,
		Example: `  # Load into the default SQLite database
  salesrollup load --input sales_data_sample.csv

  # Load into Postgres
  salesrollup load --storage postgres --dsn 'postgres://sales@localhost/sales'`,
		Args: cobra.NoArgs,
		RunE: e.runE(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			repo, err := e.openStore(ctx)
			if err != nil {
				return err
			}
			l := &ingest.Loader{Store: repo, Logger: e.log, Opts: e.ingestOptions()}
			res, err := l.LoadFile(ctx, e.cfg.Input.Path)
			if err != nil {
				return fmt.Errorf("load %s: %w", e.cfg.Input.Path, err)
			}

			t := export.Table{Name: "load", Header: []string{"metric", "value"}}
			t.Rows = [][]any{
				{"read", res.Read},
				{"inserted", res.Inserted},
				{"rejected", len(res.Rejected)},
				{"calendar_from", formatDay(res.CalendarFrom)},
				{"calendar_to", formatDay(res.CalendarTo)},
				{"calendar_inserted", res.CalendarInserted},
			}
			return e.render(t)
		}),
	}
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(records.DateLayout)
}
