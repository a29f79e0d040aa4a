// Package cli provides the salesrollup command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"salesrollup/internal/config"
	"salesrollup/internal/export"
	"salesrollup/internal/ingest"
	"salesrollup/internal/lock"
	"salesrollup/internal/logging"
	"salesrollup/internal/metrics"
	"salesrollup/internal/metrics/datadog"
	"salesrollup/internal/rollup"
	"salesrollup/internal/storage"
)

// Version is set at build time.
var Version = "0.1.0"

// ErrViolations is returned by rollup verify when the persisted rollup
// breaks an invariant.
var ErrViolations = errors.New("rollup verification failed")

// Exit codes returned by ExitCode.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitPrecondition = 2
	ExitViolations   = 3
)

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrViolations):
		return ExitViolations
	case rollup.IsPrecondition(err):
		return ExitPrecondition
	default:
		return ExitFailure
	}
}

// env is the state shared by every command of one invocation.
type env struct {
	cfgFile string
	format  string

	cfg *config.Config
	log *logrus.Logger

	out    io.Writer
	errOut io.Writer

	closers []func()
}

func (e *env) onClose(f func()) { e.closers = append(e.closers, f) }

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// runE wraps a command body so resources opened during the run are released
// whether it succeeds or fails.
func (e *env) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer e.close()
		return fn(cmd, args)
	}
}

// ingestOptions are the loader options derived from configuration.
func (e *env) ingestOptions() ingest.Options {
	return ingest.Options{
		Parser:    e.cfg.ParserOptions(),
		BatchSize: e.cfg.Storage.BatchSize,
		PadDays:   e.cfg.Calendar.PadDays,
	}
}

// requireCSV fails commands that read the raw CSV columns.
func (e *env) requireCSV(cmd string) error {
	if f := e.cfg.Input.Format; f != "" && f != "csv" {
		return fmt.Errorf("%s reads CSV input only (input.format=%s)", cmd, f)
	}
	return nil
}

// render prints t to stdout in the selected format.
func (e *env) render(t export.Table) error {
	return export.Render(e.out, t, e.format)
}

// setup resolves configuration, validates it and wires logging and metrics.
func (e *env) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(e.cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	log, err := logging.New(e.errOut, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	e.cfg, e.log = cfg, log

	issues := cfg.Validate()
	for _, iss := range issues {
		if iss.Severity == config.SeverityError {
			log.WithField("path", iss.Path).Error(iss.Message)
		} else {
			log.WithField("path", iss.Path).Warn(iss.Message)
		}
	}
	if config.HasErrors(issues) {
		return fmt.Errorf("invalid configuration (%d issues)", len(issues))
	}

	switch cfg.Metrics.Backend {
	case "datadog":
		b, err := datadog.NewBackend(cmd.Context(), datadog.Options{
			JobName:    "salesrollup",
			Tags:       cfg.Metrics.Tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			break
		}
		log.Printf("metrics: backend=datadog tags=%v", cfg.Metrics.Tags)
		metrics.SetBackend(b)
		e.onClose(func() {
			if err := b.Close(); err != nil {
				log.Printf("metrics: datadog close/flush error: %v", err)
			}
			metrics.SetBackend(nil)
		})
	default:
		log.Debugf("metrics: disabled (backend=%q)", cfg.Metrics.Backend)
	}
	return nil
}

// openStore opens the configured repository and ensures its schema.
func (e *env) openStore(ctx context.Context) (storage.Repository, error) {
	repo, err := storage.New(ctx, storage.Config{
		Kind:      e.cfg.Storage.Kind,
		DSN:       e.cfg.Storage.DSN,
		BatchSize: e.cfg.Storage.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	e.onClose(repo.Close)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, nil
}

// locker returns the append lock: Redis when configured, a no-op otherwise.
func (e *env) locker(ctx context.Context) (lock.Locker, error) {
	if e.cfg.Lock.RedisAddr == "" {
		return lock.Nop{}, nil
	}
	r, err := lock.NewRedis(ctx, e.cfg.Lock.RedisAddr, e.cfg.Lock.TTL)
	if err != nil {
		return nil, err
	}
	e.onClose(func() { _ = r.Close() })
	return r, nil
}

// NewRootCmd creates the root command writing to out and errOut.
func NewRootCmd(out, errOut io.Writer) *cobra.Command {
	e := &env{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "salesrollup",
		Short: "Daily sales rollup and sales data reports",
		Long: `salesrollup loads the sales export into a relational store and maintains
a dense (date x product) daily rollup with running and 45-day window totals.
It also profiles the raw export and reports on customers and orders.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			return e.setup(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&e.cfgFile, "config", "", "config file (default: ./salesrollup.yaml)")
	pf.StringVar(&e.format, "format", "table", "stdout table format (table|markdown|csv)")
	pf.String("input", "", "sales export path")
	pf.String("input-format", "", "input format (csv|json)")
	pf.String("storage", "", "storage backend (postgres|sqlite|mssql|mysql|duckdb)")
	pf.String("dsn", "", "storage DSN (environment variables are expanded)")
	pf.String("out", "", "output directory for reports and charts")
	pf.Bool("xlsx", false, "also write an XLSX workbook")
	pf.String("log-level", "", "log level (debug|info|warn|error)")
	pf.String("log-format", "", "log format (text|json)")

	_ = root.RegisterFlagCompletionFunc("storage", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"postgres", "sqlite", "mssql", "mysql", "duckdb"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = root.RegisterFlagCompletionFunc("input-format", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"csv", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = root.RegisterFlagCompletionFunc("format", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "markdown", "csv"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		newProbeCmd(e),
		newLoadCmd(e),
		newProfileCmd(e),
		newCustomersCmd(e),
		newReportsCmd(e),
		newRollupCmd(e),
	)
	return root
}

// Execute runs the command tree with os.Args and returns the exit code.
func Execute(ctx context.Context) int {
	root := NewRootCmd(os.Stdout, os.Stderr)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return ExitCode(err)
}
