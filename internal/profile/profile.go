package profile

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"salesrollup/internal/export"
	"salesrollup/internal/metrics"
)

// Logger is the minimal logging interface used by the profiler.
type Logger interface {
	Printf(format string, v ...any)
}

// Options controls a profile run.
type Options struct {
	// OutDir receives summary.csv, index.html and the charts.
	OutDir string

	// SkipColumns are not charted. Matching is case-insensitive. They are
	// still summarised.
	SkipColumns []string

	// CategoricalThreshold is the distinct-value count (null included) below
	// which a numeric column is charted as bars. Defaults to 20.
	CategoricalThreshold int

	Logger Logger
}

// ChartKind names the chart drawn for a column.
type ChartKind string

const (
	ChartBar       ChartKind = "bar"
	ChartHistogram ChartKind = "histogram"
	ChartSkipped   ChartKind = "skipped"
)

// Result lists what a profile run produced.
type Result struct {
	Summary     []ColumnSummary
	Charts      map[string]ChartKind // column -> chart kind
	SummaryPath string
	IndexPath   string
}

// SummaryFile is the name of the per-column summary written to OutDir.
const SummaryFile = "summary.csv"

// ChartFile is the chart file name for a column.
func ChartFile(column string) string {
	return column + "_distribution.png"
}

// SummaryTable renders summaries as an export table.
func SummaryTable(s []ColumnSummary) export.Table {
	t := export.Table{Name: "summary", Header: SummaryHeader}
	for _, c := range s {
		t.Rows = append(t.Rows, c.Row())
	}
	return t
}

// Run summarises every column of t, draws a chart for every column not
// skipped and writes summary.csv plus index.html to opt.OutDir.
func Run(t *Table, opt Options) (res Result, err error) {
	start := time.Now()
	defer func() { metrics.RecordStep("profile", start, err) }()

	threshold := opt.CategoricalThreshold
	if threshold <= 0 {
		threshold = 20
	}
	if err := os.MkdirAll(opt.OutDir, 0o755); err != nil {
		return res, fmt.Errorf("create output dir: %w", err)
	}

	skip := make(map[string]bool, len(opt.SkipColumns))
	for _, c := range opt.SkipColumns {
		skip[strings.ToUpper(strings.TrimSpace(c))] = true
	}

	res.Charts = make(map[string]ChartKind, len(t.Columns))
	res.Summary = make([]ColumnSummary, len(t.Columns))
	for i, name := range t.Columns {
		c := analyse(name, t.Column(i))
		res.Summary[i] = c.summary()

		if skip[strings.ToUpper(name)] {
			res.Charts[name] = ChartSkipped
			continue
		}
		path := filepath.Join(opt.OutDir, ChartFile(name))
		kind := ChartHistogram
		if c.categorical(threshold) {
			kind = ChartBar
			err = drawBar(c, path)
		} else {
			err = drawHistogram(c, path)
		}
		if err != nil {
			return res, err
		}
		res.Charts[name] = kind
		if opt.Logger != nil {
			opt.Logger.Printf("stage=profile chart column=%s kind=%s", name, kind)
		}
	}

	res.SummaryPath = filepath.Join(opt.OutDir, SummaryFile)
	if err := export.WriteCSV(res.SummaryPath, SummaryTable(res.Summary)); err != nil {
		return res, err
	}

	res.IndexPath = filepath.Join(opt.OutDir, "index.html")
	if err := writeIndex(res.IndexPath, t.Columns, res); err != nil {
		return res, err
	}

	metrics.RecordRows("profile_columns", int64(len(t.Columns)))
	if opt.Logger != nil {
		opt.Logger.Printf("stage=profile ok columns=%d rows=%d out=%s duration=%s",
			len(t.Columns), len(t.Rows), opt.OutDir, time.Since(start).Truncate(time.Millisecond))
	}
	return res, nil
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Column profile</title></head>
<body>
<h1>Column profile</h1>
<table id="summary">
<thead><tr>{{range .Header}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr data-column="{{.Name}}"><td>{{.Nulls}}</td><td>{{.Unique}}</td><td>{{.ModalValue}}</td><td>{{.ModalN}}</td><td>{{.Name}}</td></tr>
{{- end}}
</tbody>
</table>
<h2>Distributions</h2>
<ul id="charts">
{{- range .Charts}}
<li class="{{.Kind}}"><a href="{{.File}}">{{.Column}}</a></li>
{{- end}}
</ul>
</body>
</html>
`))

type indexChart struct {
	Column string
	File   string
	Kind   ChartKind
}

func writeIndex(path string, columns []string, res Result) error {
	data := struct {
		Header []string
		Rows   []ColumnSummary
		Charts []indexChart
	}{Header: SummaryHeader, Rows: res.Summary}
	for _, c := range columns {
		if k := res.Charts[c]; k != ChartSkipped {
			data.Charts = append(data.Charts, indexChart{Column: c, File: ChartFile(c), Kind: k})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := indexTemplate.Execute(f, data); err != nil {
		_ = f.Close()
		return fmt.Errorf("render index: %w", err)
	}
	return f.Close()
}
