package datadog

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"salesrollup/internal/metrics"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() (datadogV2.MetricPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return datadogV2.MetricPayload{}, false
	}
	return f.payloads[len(f.payloads)-1], true
}

// newTestBackend builds a backend whose ticker never fires during the test.
func newTestBackend(t *testing.T, sub *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		JobName:    "test",
		Tags:       []string{"team:data"},
		FlushEvery: time.Hour,
		now:        func() time.Time { return time.Unix(1700000000, 0) },
		submitter:  sub,
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b
}

func findSeries(p datadogV2.MetricPayload, metric string) []datadogV2.MetricSeries {
	var out []datadogV2.MetricSeries
	for _, s := range p.Series {
		if s.Metric == metric {
			out = append(out, s)
		}
	}
	return out
}

func hasTag(s datadogV2.MetricSeries, tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func TestResolveEnvTag(t *testing.T) {
	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_used_when_ENV_empty", env: "", dd: "stage", want: "env:stage"},
		{name: "whitespace_ignored", env: "   ", dd: "\n\t", want: "env:unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ENV", tc.env)
			t.Setenv("DD_ENV", tc.dd)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("resolveEnvTag()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestStepStatusKeyRoundTrip(t *testing.T) {
	for _, tc := range []struct{ step, status string }{{"build", "ok"}, {"", "ok"}, {"append", ""}} {
		step, status := splitStepStatusKey(stepStatusKey(tc.step, tc.status))
		if step != tc.step || status != tc.status {
			t.Fatalf("roundtrip got=(%q,%q), want=(%q,%q)", step, status, tc.step, tc.status)
		}
	}
	if step, status := splitStepStatusKey("no-sep"); step != "no-sep" || status != "unknown" {
		t.Fatalf("splitStepStatusKey()=(%q,%q)", step, status)
	}
}

func TestFlush_SubmitsRollupMetrics(t *testing.T) {
	t.Setenv("ENV", "test")
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)
	defer b.Close()

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "append", "status": "ok"})
	b.IncCounter(metrics.StepTotal, 2, metrics.Labels{"step": "append", "status": "ok"})
	b.IncCounter(metrics.RowsTotal, 109, metrics.Labels{"kind": "rollup_inserted"})
	b.IncCounter(metrics.RowsTotal, 5, metrics.Labels{}) // no kind: dropped
	b.IncCounter("unknown_metric", 1, metrics.Labels{})  // ignored
	for _, v := range []float64{0.1, 0.2, 0.3, 0.4} {
		b.ObserveHistogram(metrics.StepDurationSeconds, v, metrics.Labels{"step": "append", "status": "ok"})
	}

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	p, ok := sub.last()
	if !ok {
		t.Fatalf("expected a payload")
	}

	steps := findSeries(p, "salesrollup.step.total")
	if len(steps) != 1 || *steps[0].Points[0].Value != 3 {
		t.Fatalf("unexpected step series %+v", steps)
	}
	for _, tag := range []string{"env:test", "job:test", "team:data", "step:append", "status:ok"} {
		if !hasTag(steps[0], tag) {
			t.Fatalf("missing tag %q in %v", tag, steps[0].Tags)
		}
	}

	rows := findSeries(p, "salesrollup.rows.total")
	if len(rows) != 1 || *rows[0].Points[0].Value != 109 || !hasTag(rows[0], "kind:rollup_inserted") {
		t.Fatalf("unexpected rows series %+v", rows)
	}

	maxS := findSeries(p, "salesrollup.step.duration_seconds.max")
	if len(maxS) != 1 || *maxS[0].Points[0].Value != 0.4 {
		t.Fatalf("unexpected max series %+v", maxS)
	}
	samples := findSeries(p, "salesrollup.step.duration_seconds.samples")
	if len(samples) != 1 || *samples[0].Points[0].Value != 4 {
		t.Fatalf("unexpected samples series %+v", samples)
	}
	if ts := *steps[0].Points[0].Timestamp; ts != 1700000000 {
		t.Fatalf("timestamp=%d", ts)
	}
}

func TestFlush_EmptyIsNoop(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)
	defer b.Close()

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if sub.count() != 0 {
		t.Fatalf("expected no submission, got %d", sub.count())
	}
}

func TestFlush_ResetsEvenOnError(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("intake down")}
	b := newTestBackend(t, sub)
	defer b.Close()

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "build", "status": "error"})
	if err := b.Flush(); err == nil {
		t.Fatalf("expected submit error")
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("second Flush should be empty, got %v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("expected one submission, got %d", sub.count())
	}
}

func TestClose_FlushesTailAndIsRepeatable(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"kind": "transactions_inserted"})
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("expected final flush, got %d submissions", sub.count())
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestBackend_ThroughFacade(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)
	defer b.Close()

	metrics.SetBackend(b)
	defer metrics.SetBackend(nil)

	metrics.RecordStep("append", time.Now(), nil)
	metrics.RecordRows("rollup_inserted", 2)
	if err := metrics.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	p, _ := sub.last()
	if len(findSeries(p, "salesrollup.step.total")) != 1 || len(findSeries(p, "salesrollup.rows.total")) != 1 {
		t.Fatalf("facade metrics not submitted: %+v", p.Series)
	}
}

func TestAddPercentiles_DoesNotMutateInput(t *testing.T) {
	in := []float64{3, 1, 2}
	var series []datadogV2.MetricSeries
	addPercentiles(&series, nil, "x", in, 0)
	if in[0] != 3 || in[1] != 1 || in[2] != 2 {
		t.Fatalf("input mutated: %v", in)
	}
	if len(series) != 6 {
		t.Fatalf("expected 6 series, got %d", len(series))
	}
}
