package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"salesrollup/internal/export"
	"salesrollup/internal/records"
	"salesrollup/internal/rollup"
)

// RollupTable is the name of the daily rollup table and its export file.
const RollupTable = "f_sales_daily_rollup"

func newRollupCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollup",
		Short: "Build, extend, verify and export the daily sales rollup",
	}
	cmd.AddCommand(
		newRollupBuildCmd(e),
		newRollupAppendCmd(e),
		newRollupCatchUpCmd(e),
		newRollupVerifyCmd(e),
		newRollupExportCmd(e),
		newRollupRunsCmd(e),
	)
	return cmd
}

// engine opens the store and lock and returns a rollup engine over them.
func (e *env) engine(ctx context.Context) (*rollup.Engine, error) {
	repo, err := e.openStore(ctx)
	if err != nil {
		return nil, err
	}
	lk, err := e.locker(ctx)
	if err != nil {
		return nil, err
	}
	return &rollup.Engine{Store: repo, Logger: e.log, Locker: lk}, nil
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(records.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

func appendTable(results []rollup.AppendResult) export.Table {
	t := export.Table{Name: "appended", Header: []string{"run_id", "date", "products", "inserted"}}
	for _, r := range results {
		t.Rows = append(t.Rows, []any{r.RunID, r.Target, r.Products, r.Inserted})
	}
	return t
}

func newRollupBuildCmd(e *env) *cobra.Command {
	var (
		rebuild bool
		until   string
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Materialise the dense rollup over the whole transaction history",
		Example: `  # First build
  salesrollup rollup build

  # Rebuild from scratch up to a date, leaving later dates for append
  salesrollup rollup build --rebuild --until 2005-04-30`,
		Args: cobra.NoArgs,
		RunE: e.runE(func(cmd *cobra.Command, _ []string) error {
			u, err := parseDay(until)
			if err != nil {
				return err
			}
			eng, err := e.engine(cmd.Context())
			if err != nil {
				return err
			}
			res, err := eng.BuildBatch(cmd.Context(), rollup.BuildOptions{Rebuild: rebuild, Until: u})
			if err != nil {
				return err
			}
			t := export.Table{Name: "build", Header: []string{"run_id", "from", "to", "dates", "products", "rows", "uncovered_dates"}}
			t.Rows = [][]any{{res.RunID, res.From, res.To, res.Dates, res.Products, res.Rows, len(res.Uncovered)}}
			return e.render(t)
		}),
	}
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "replace an existing rollup")
	cmd.Flags().StringVar(&until, "until", "", "only use transactions on or before this date (YYYY-MM-DD)")
	return cmd
}

func newRollupAppendCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "append",
		Short: "Extend the rollup by the next calendar date",
		Args:  cobra.NoArgs,
		RunE: e.runE(func(cmd *cobra.Command, _ []string) error {
			eng, err := e.engine(cmd.Context())
			if err != nil {
				return err
			}
			res, err := eng.AppendNext(cmd.Context())
			if err != nil {
				return err
			}
			return e.render(appendTable([]rollup.AppendResult{res}))
		}),
	}
}

func newRollupCatchUpCmd(e *env) *cobra.Command {
	var until string
	cmd := &cobra.Command{
		Use:   "catchup",
		Short: "Append one date at a time until the rollup reaches a date",
		Long: `Append dates until the rollup reaches --until, or the latest order date when
--until is not given. Each date is committed on its own.`,
		Args: cobra.NoArgs,
		RunE: e.runE(func(cmd *cobra.Command, _ []string) error {
			u, err := parseDay(until)
			if err != nil {
				return err
			}
			eng, err := e.engine(cmd.Context())
			if err != nil {
				return err
			}
			results, err := eng.CatchUp(cmd.Context(), u)
			if rerr := e.render(appendTable(results)); rerr != nil && err == nil {
				err = rerr
			}
			return err
		}),
	}
	cmd.Flags().StringVar(&until, "until", "", "last date to append (YYYY-MM-DD)")
	return cmd
}

func newRollupVerifyCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check density, running totals and window sums of the persisted rollup",
		Long: `Reload the rollup and check that every (date, product) cell exists, that
running totals accumulate daily sales and that sales_45d covers exactly the
trailing 45 days. Exits with status 3 when any check fails.`,
		Args: cobra.NoArgs,
		RunE: e.runE(func(cmd *cobra.Command, _ []string) error {
			eng, err := e.engine(cmd.Context())
			if err != nil {
				return err
			}
			res, err := eng.Verify(cmd.Context())
			if err != nil {
				return err
			}
			t := export.Table{Name: "verify", Header: []string{"kind", "date", "product_code", "detail"}}
			for _, v := range res.Violations {
				t.Rows = append(t.Rows, []any{string(v.Kind), v.Date, v.Product, v.String()})
			}
			if err := e.render(t); err != nil {
				return err
			}
			if !res.OK() {
				return fmt.Errorf("%w: %d violations", ErrViolations, len(res.Violations))
			}
			return nil
		}),
	}
}

func newRollupExportCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write the persisted rollup to the output directory",
		Args:  cobra.NoArgs,
		RunE: e.runE(func(cmd *cobra.Command, _ []string) error {
			repo, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := repo.RollupRows(cmd.Context())
			if err != nil {
				return fmt.Errorf("load rollup: %w", err)
			}
			if len(rows) == 0 {
				return rollup.ErrNoRollup
			}
			t := export.Table{
				Name:   RollupTable,
				Header: []string{"date_actual", "product_code", "total_sales", "sales_to_date", "sales_45d"},
				Rows:   make([][]any, len(rows)),
			}
			for i, r := range rows {
				t.Rows[i] = []any{r.Date, r.ProductCode, r.SalesToday, r.SalesToDate, r.Sales45d}
			}
			if err := e.writeTables(RollupTable+".xlsx", t); err != nil {
				return err
			}
			_, err = fmt.Fprintf(e.out, "wrote %d rows to %s\n", len(rows), filepath.Join(e.cfg.Output.Dir, RollupTable+".csv"))
			return err
		}),
	}
}

func newRollupRunsCmd(e *env) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent rollup builds and appends",
		Args:  cobra.NoArgs,
		RunE: e.runE(func(cmd *cobra.Command, _ []string) error {
			repo, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			runs, err := repo.Runs(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("load runs: %w", err)
			}
			t := export.Table{Name: "rollup_runs", Header: []string{"run_id", "kind", "target_date", "rows_written", "started_at", "finished_at"}}
			for _, r := range runs {
				t.Rows = append(t.Rows, []any{r.ID.String(), string(r.Kind), r.TargetDate, r.RowsWritten, r.StartedAt, r.FinishedAt})
			}
			return e.render(t)
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}
