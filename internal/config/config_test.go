package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "salesrollup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultInputPath, cfg.Input.Path)
	assert.Equal(t, "latin1", cfg.Input.Encoding)
	assert.Equal(t, "csv", cfg.Input.Format)
	assert.Equal(t, "sqlite", cfg.Storage.Kind)
	assert.Equal(t, DefaultBatchSize, cfg.Storage.BatchSize)
	assert.Equal(t, 365, cfg.Calendar.PadDays)
	assert.Equal(t, 20, cfg.Profile.CategoricalThreshold)
	assert.Equal(t, 2, cfg.Reports.TopCustomers)
	assert.Equal(t, 30*time.Second, cfg.Lock.TTL)
	assert.Equal(t, "order_date", cfg.Input.HeaderMap["ORDERDATE"])
	assert.Contains(t, cfg.Input.NullValues, "NA")
	assert.Contains(t, cfg.Profile.SkipColumns, "PHONE")
	assert.Empty(t, cfg.Validate())
}

func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, `
storage:
  kind: postgres
  dsn: postgres://file
  batch_size: 50
log:
  level: debug
calendar:
  pad_days: 10
`)
	t.Setenv("SALESROLLUP_STORAGE__DSN", "postgres://env")
	t.Setenv("SALESROLLUP_CALENDAR__PAD_DAYS", "20")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("dsn", "", "")
	flags.String("log-level", "", "")
	flags.Bool("rebuild", false, "")
	require.NoError(t, flags.Parse([]string{"--log-level=warn", "--rebuild"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Kind, "file beats defaults")
	assert.Equal(t, 50, cfg.Storage.BatchSize)
	assert.Equal(t, "postgres://env", cfg.Storage.DSN, "env beats file; unset flag ignored")
	assert.Equal(t, 20, cfg.Calendar.PadDays)
	assert.Equal(t, "warn", cfg.Log.Level, "flag beats file")
}

func TestLoad_ExpandsDSN(t *testing.T) {
	t.Setenv("PGPASS", "s3cret")
	path := writeFile(t, "storage:\n  kind: postgres\n  dsn: postgres://u:${PGPASS}@h/db\n")
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:s3cret@h/db", cfg.Storage.DSN)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
}

func TestFlagKey(t *testing.T) {
	tests := []struct {
		flag string
		key  string
		ok   bool
	}{
		{"dsn", "storage.dsn", true},
		{"input", "input.path", true},
		{"log-level", "log.level", true},
		{"calendar-pad-days", "calendar.pad_days", true},
		{"rebuild", "", false},
	}
	for _, tt := range tests {
		key, ok := flagKey(tt.flag)
		if key != tt.key || ok != tt.ok {
			t.Fatalf("flagKey(%q) = %q,%v want %q,%v", tt.flag, key, ok, tt.key, tt.ok)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	cfg.Storage.Kind = "oracle"
	cfg.Input.Encoding = "utf16"
	cfg.Input.Format = "xml"
	cfg.Storage.BatchSize = 0

	issues := cfg.Validate()
	require.True(t, HasErrors(issues))

	paths := map[string]bool{}
	for _, i := range issues {
		paths[i.Path] = true
	}
	assert.True(t, paths["storage.kind"])
	assert.True(t, paths["input.encoding"])
	assert.True(t, paths["input.format"])
	assert.True(t, paths["storage.batch_size"])
	assert.True(t, paths["storage.dsn"], "non-file backends need a dsn")
}

func TestValidate_WarningsDoNotFail(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	cfg.Metrics.Backend = "datadog"

	issues := cfg.Validate()
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityWarning, issues[0].Severity)
	assert.False(t, HasErrors(issues))
}

func TestOptions(t *testing.T) {
	o := Options{
		"comma":  `\t`,
		"semi":   ";",
		"flag":   "true",
		"n":      float64(3),
		"hm":     map[string]any{"A": "a"},
		"list":   []any{"x", "y"},
		"csv":    "p, q",
		"number": 7,
	}
	assert.Equal(t, '\t', o.Rune("comma", ','))
	assert.Equal(t, ';', o.Rune("semi", ','))
	assert.Equal(t, ',', o.Rune("missing", ','))
	assert.True(t, o.Bool("flag", false))
	assert.Equal(t, 3, o.Int("n", 0))
	assert.Equal(t, map[string]string{"A": "a"}, o.StringMap("hm"))
	assert.Equal(t, []string{"x", "y"}, o.StringSlice("list"))
	assert.Equal(t, []string{"p", "q"}, o.StringSlice("csv"))
	assert.Equal(t, "7", o.String("number", ""))

	var nilOpts Options
	assert.Equal(t, "d", nilOpts.String("x", "d"))
}

func TestParserOptions(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	o := cfg.ParserOptions()
	assert.Equal(t, ',', o.Rune("comma", ';'))
	assert.Equal(t, "order_number", o.StringMap("header_map")["ORDERNUMBER"])
	assert.Contains(t, o.StringSlice("null_values"), "NULL")
}
