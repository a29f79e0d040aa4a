package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingBackend struct {
	mu       sync.Mutex
	counters map[string]float64
	hist     map[string]int
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{counters: map[string]float64{}, hist: map[string]int{}}
}

func (b *recordingBackend) IncCounter(name string, delta float64, labels Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters[name+"|"+labels["step"]+labels["kind"]+"|"+labels["status"]] += delta
}

func (b *recordingBackend) ObserveHistogram(name string, value float64, labels Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hist[name+"|"+labels["step"]+"|"+labels["status"]]++
}

func (b *recordingBackend) Flush() error { return nil }

func TestRecordStep_RoutesToInstalledBackend(t *testing.T) {
	b := newRecordingBackend()
	SetBackend(b)
	t.Cleanup(func() { SetBackend(nil) })

	RecordStep("append", time.Now(), nil)
	RecordStep("append", time.Now(), errors.New("boom"))
	RecordRows("rollup_inserted", 12)
	RecordRows("rollup_inserted", 0)

	if got := b.counters[StepTotal+"|append|ok"]; got != 1 {
		t.Fatalf("ok step count=%v want 1", got)
	}
	if got := b.counters[StepTotal+"|append|error"]; got != 1 {
		t.Fatalf("error step count=%v want 1", got)
	}
	if got := b.counters[RowsTotal+"|rollup_inserted|"]; got != 12 {
		t.Fatalf("rows=%v want 12", got)
	}
	if got := b.hist[StepDurationSeconds+"|append|ok"]; got != 1 {
		t.Fatalf("duration samples=%d want 1", got)
	}
}

func TestSetBackend_NilRestoresNop(t *testing.T) {
	SetBackend(nil)
	IncCounter(StepTotal, 1, nil)
	if err := Flush(); err != nil {
		t.Fatalf("nop Flush err=%v", err)
	}
}
