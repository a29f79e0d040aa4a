package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"salesrollup/internal/probe"
)

func newProbeCmd(e *env) *cobra.Command {
	var (
		maxBytes int
		sniff    bool
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Sample the sales CSV and check it carries every transaction column",
		Long: `Read the head of the sales CSV and print one row per column: the transaction
column it maps to, an inferred type, nulls, distinct values and an example.
Fails when a transaction column has no source header.`,
		Args: cobra.NoArgs,
		RunE: e.runE(func(cmd *cobra.Command, _ []string) error {
			if err := e.requireCSV("probe"); err != nil {
				return err
			}
			f, err := os.Open(e.cfg.Input.Path)
			if err != nil {
				return err
			}
			defer f.Close()

			opt := e.cfg.ParserOptions()
			if sniff {
				delete(opt, "comma")
			}
			res, err := probe.Probe(f, probe.Options{Parser: opt, MaxBytes: maxBytes})
			if err != nil {
				return fmt.Errorf("probe %s: %w", e.cfg.Input.Path, err)
			}
			if err := e.render(res.Table()); err != nil {
				return err
			}
			e.log.Printf("stage=probe delimiter=%q rows=%d skipped=%d duplicate_lines=%d",
				res.Delimiter, res.Rows, res.Skipped, res.DuplicateLines)
			if res.DuplicateLines > 0 {
				e.log.Warnf("stage=probe %d sample rows repeat an (order_number, order_line) pair", res.DuplicateLines)
			}
			if !res.OK() {
				return fmt.Errorf("no source column for %v", res.Missing)
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&maxBytes, "max-bytes", probe.DefaultMaxBytes, "bytes of the input to sample")
	cmd.Flags().BoolVar(&sniff, "sniff", false, "detect the delimiter instead of using input.comma")
	return cmd
}
