// Package config loads salesrollup settings from a YAML file, SALESROLLUP_
// environment variables and explicitly set CLI flags, in that order.
package config

import "time"

// Default values applied before any file, env or flag is read.
const (
	DefaultConfigFile           = "salesrollup.yaml"
	DefaultInputPath            = "sales_data_sample.csv"
	DefaultInputFormat          = "csv"
	DefaultEncoding             = "latin1"
	DefaultComma                = ","
	DefaultStorageKind          = "sqlite"
	DefaultStorageDSN           = "salesrollup.db"
	DefaultBatchSize            = 1000
	DefaultPadDays              = 365
	DefaultOutputDir            = "out"
	DefaultCategoricalThreshold = 20
	DefaultTopCustomers         = 2
	DefaultLockTTL              = 30 * time.Second
	DefaultMetricsBackend       = "none"
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
	EnvPrefix                   = "SALESROLLUP_"
)

// Config is the fully resolved configuration.
type Config struct {
	Input    InputConfig    `koanf:"input"`
	Storage  StorageConfig  `koanf:"storage"`
	Calendar CalendarConfig `koanf:"calendar"`
	Output   OutputConfig   `koanf:"output"`
	Profile  ProfileConfig  `koanf:"profile"`
	Reports  ReportsConfig  `koanf:"reports"`
	Lock     LockConfig     `koanf:"lock"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
}

// InputConfig describes the sales export.
type InputConfig struct {
	Path string `koanf:"path" validate:"required"`

	// Format is csv, or json for an array, envelope object or JSON lines of
	// records keyed like the CSV header.
	Format   string `koanf:"format" validate:"oneof=csv json"`
	Encoding string `koanf:"encoding" validate:"oneof=latin1 utf8"`
	Comma    string `koanf:"comma" validate:"len=1"`

	// HeaderMap renames raw CSV headers to transaction column names. Headers
	// not listed are lower-cased with spaces replaced by underscores.
	HeaderMap map[string]string `koanf:"header_map"`

	// NullValues are cell strings read as null in addition to the empty string.
	NullValues []string `koanf:"null_values"`
}

// StorageConfig selects a storage backend.
type StorageConfig struct {
	Kind      string `koanf:"kind" validate:"oneof=postgres sqlite mssql mysql duckdb"`
	DSN       string `koanf:"dsn"`
	BatchSize int    `koanf:"batch_size" validate:"gte=1"`
}

type CalendarConfig struct {
	// PadDays extends the seeded calendar past the latest order date so
	// appends have dates to advance into.
	PadDays int `koanf:"pad_days" validate:"gte=0"`
}

type OutputConfig struct {
	Dir  string `koanf:"dir" validate:"required"`
	XLSX bool   `koanf:"xlsx"`
}

type ProfileConfig struct {
	SkipColumns          []string `koanf:"skip_columns"`
	CategoricalThreshold int      `koanf:"categorical_threshold" validate:"gte=1"`
}

type ReportsConfig struct {
	TopCustomers int `koanf:"top_customers" validate:"gte=1"`
}

// LockConfig enables the distributed append lock when RedisAddr is set.
type LockConfig struct {
	RedisAddr string        `koanf:"redis_addr" validate:"omitempty,hostname_port"`
	TTL       time.Duration `koanf:"ttl" validate:"gt=0"`
}

type MetricsConfig struct {
	Backend string   `koanf:"backend" validate:"oneof=none datadog"`
	Tags    []string `koanf:"tags"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// DefaultHeaderMap maps the raw sales export headers to transaction columns.
func DefaultHeaderMap() map[string]string {
	return map[string]string{
		"ORDERNUMBER":     "order_number",
		"QUANTITYORDERED": "quantity_ordered",
		"ORDERLINENUMBER": "order_line",
		"SALES":           "sales",
		"ORDERDATE":       "order_date",
		"MONTH_ID":        "month_id",
		"YEAR_ID":         "year_id",
		"PRODUCTLINE":     "product_line",
		"PRODUCTCODE":     "product_code",
		"CUSTOMERNAME":    "customer_name",
		"TERRITORY":       "territory",
	}
}

// DefaultNullValues are the cell strings treated as missing, matching the
// usual dataframe reader defaults. "NA" is among them, so the territory code
// for North America reads as null and reports as Missing.
func DefaultNullValues() []string {
	return []string{
		"#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan",
		"1.#IND", "1.#QNAN", "<NA>", "N/A", "NA", "NULL", "NaN", "None",
		"n/a", "nan", "null",
	}
}

// DefaultSkipColumns are identifier-like columns the profiler does not chart.
func DefaultSkipColumns() []string {
	return []string{
		"ORDERNUMBER", "CONTACTLASTNAME", "ORDERDATE", "ORDERLINENUMBER", "PHONE",
		"CONTACTFIRSTNAME", "CUSTOMERNAME", "ADDRESSLINE1", "ADDRESSLINE2", "POSTCODE",
	}
}

func defaults() map[string]any {
	hm := make(map[string]any)
	for k, v := range DefaultHeaderMap() {
		hm[k] = v
	}
	return map[string]any{
		"input.path":                    DefaultInputPath,
		"input.format":                  DefaultInputFormat,
		"input.encoding":                DefaultEncoding,
		"input.comma":                   DefaultComma,
		"input.header_map":              hm,
		"input.null_values":             DefaultNullValues(),
		"storage.kind":                  DefaultStorageKind,
		"storage.dsn":                   DefaultStorageDSN,
		"storage.batch_size":            DefaultBatchSize,
		"calendar.pad_days":             DefaultPadDays,
		"output.dir":                    DefaultOutputDir,
		"output.xlsx":                   false,
		"profile.skip_columns":          DefaultSkipColumns(),
		"profile.categorical_threshold": DefaultCategoricalThreshold,
		"reports.top_customers":         DefaultTopCustomers,
		"lock.redis_addr":               "",
		"lock.ttl":                      DefaultLockTTL.String(),
		"metrics.backend":               DefaultMetricsBackend,
		"metrics.tags":                  []string{},
		"log.level":                     DefaultLogLevel,
		"log.format":                    DefaultLogFormat,
	}
}

// ParserOptions renders the input settings as the parsers' option bag.
func (c *Config) ParserOptions() Options {
	hm := make(map[string]any, len(c.Input.HeaderMap))
	for k, v := range c.Input.HeaderMap {
		hm[k] = v
	}
	nulls := make([]any, len(c.Input.NullValues))
	for i, v := range c.Input.NullValues {
		nulls[i] = v
	}
	return Options{
		"format":      c.Input.Format,
		"has_header":  true,
		"comma":       c.Input.Comma,
		"trim_space":  true,
		"encoding":    c.Input.Encoding,
		"header_map":  hm,
		"null_values": nulls,
	}
}
