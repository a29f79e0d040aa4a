package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"salesrollup/internal/customer"
	"salesrollup/internal/export"
	"salesrollup/internal/ingest"
	"salesrollup/internal/profile"
	"salesrollup/internal/records"
	"salesrollup/internal/reports"
)

// transactions reads the input export, or the store when fromDB is set.
func (e *env) transactions(ctx context.Context, fromDB bool) ([]records.Transaction, error) {
	if fromDB {
		repo, err := e.openStore(ctx)
		if err != nil {
			return nil, err
		}
		return repo.LoadTransactions(ctx)
	}
	txs, rejects, err := ingest.ReadFile(ctx, e.cfg.Input.Path, e.ingestOptions())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", e.cfg.Input.Path, err)
	}
	for _, r := range rejects {
		e.log.Printf("stage=read reject line=%d reason=%q", r.Line, r.Reason)
	}
	return txs, nil
}

// writeTables writes one CSV per table to the output dir, plus a workbook
// named book when xlsx output is enabled.
func (e *env) writeTables(book string, tables ...export.Table) error {
	paths, err := export.WriteCSVFiles(e.cfg.Output.Dir, tables...)
	if err != nil {
		return err
	}
	if e.cfg.Output.XLSX {
		p := filepath.Join(e.cfg.Output.Dir, book)
		if err := export.WriteXLSX(p, tables...); err != nil {
			return err
		}
		paths = append(paths, p)
	}
	for _, p := range paths {
		e.log.Printf("stage=export wrote %s", p)
	}
	return nil
}

func newProfileCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Summarise every column of the sales CSV and chart its distribution",
		Long: `Write summary.csv (nulls, distinct values and mode per column), one
<COLUMN>_distribution.png per charted column and an index.html to <out>/profile.
Columns listed in profile.skip_columns are summarised but not charted.`,
		Args: cobra.NoArgs,
		RunE: e.runE(func(cmd *cobra.Command, _ []string) error {
			if err := e.requireCSV("profile"); err != nil {
				return err
			}
			tbl, err := profile.ReadTable(cmd.Context(), e.cfg.Input.Path, e.cfg.ParserOptions(), func(line int, err error) {
				e.log.Warnf("stage=profile skip line=%d: %v", line, err)
			})
			if err != nil {
				return fmt.Errorf("read %s: %w", e.cfg.Input.Path, err)
			}
			res, err := profile.Run(tbl, profile.Options{
				OutDir:               filepath.Join(e.cfg.Output.Dir, "profile"),
				SkipColumns:          e.cfg.Profile.SkipColumns,
				CategoricalThreshold: e.cfg.Profile.CategoricalThreshold,
				Logger:               e.log,
			})
			if err != nil {
				return err
			}
			return e.render(profile.SummaryTable(res.Summary))
		}),
	}
}

func newCustomersCmd(e *env) *cobra.Command {
	var fromDB bool
	cmd := &cobra.Command{
		Use:   "customers",
		Short: "Customer lifetime value and CVI by territory and product line",
		Long: `Write customer_lifetime.csv, territory_summary.csv, cvi_by_territory.csv and
cvi_by_product.csv to the output directory. CVI is a customer's total sales
divided by the mean customer total.`,
		Args: cobra.NoArgs,
		RunE: e.runE(func(cmd *cobra.Command, _ []string) error {
			txs, err := e.transactions(cmd.Context(), fromDB)
			if err != nil {
				return err
			}
			tables := customer.Build(txs).Tables()
			if err := e.writeTables("customers.xlsx", tables...); err != nil {
				return err
			}
			// The lifetime table has one row per customer; print the groups only.
			for _, t := range tables[1:] {
				if err := e.render(t); err != nil {
					return err
				}
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&fromDB, "from-db", false, "read transactions from the store instead of the CSV")
	return cmd
}

func newReportsCmd(e *env) *cobra.Command {
	var fromDB bool
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "First product per month, top-customer common products, quantity escalations",
		Args:  cobra.NoArgs,
		RunE: e.runE(func(cmd *cobra.Command, _ []string) error {
			txs, err := e.transactions(cmd.Context(), fromDB)
			if err != nil {
				return err
			}
			tables := reports.Tables(txs, e.cfg.Reports.TopCustomers)
			if err := e.writeTables("reports.xlsx", tables...); err != nil {
				return err
			}
			for _, t := range tables {
				if err := e.render(t); err != nil {
					return err
				}
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&fromDB, "from-db", false, "read transactions from the store instead of the CSV")
	return cmd
}
