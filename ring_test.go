//go:build linux

package ouroboros

import (
	"syscall"
	"testing"
)

func skipIfNoIOURing(t *testing.T) {
	t.Helper()
	e, err := New(4)
	if err != nil {
		if err == syscall.ENOSYS {
			t.Skip("io_uring not supported on this kernel")
		}
		if err == syscall.EPERM {
			t.Skip("io_uring blocked by seccomp or permissions")
		}
		t.Skipf("io_uring unavailable: %v", err)
	}
	e.Close()
}

func TestNewEngine(t *testing.T) {
	skipIfNoIOURing(t)

	tests := []struct {
		name    string
		entries uint32
		opts    []Option
		wantErr bool
	}{
		{"default_64", 64, nil, false},
		{"default_128", 128, nil, false},
		{"non_power_of_two", 100, nil, false}, // kernel rounds up
		{"zero_uses_default", 0, nil, false},
		{"with_single_issuer", 64, []Option{WithSingleIssuer()}, false},
		{"with_coop_taskrun", 64, []Option{WithCoopTaskrun()}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.entries, tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if e != nil {
				if e.Fd() < 0 {
					t.Error("engine fd should be valid")
				}
				if e.SQEntries() == 0 {
					t.Error("SQ entries should be non-zero")
				}
				if e.CQEntries() == 0 {
					t.Error("CQ entries should be non-zero")
				}
				e.Close()
			}
		})
	}
}

func TestEngineClose(t *testing.T) {
	skipIfNoIOURing(t)

	e, err := New(64)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := e.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil (idempotent)", err)
	}
}

func TestEngineFeatures(t *testing.T) {
	skipIfNoIOURing(t)

	e, err := New(64)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer e.Close()

	t.Logf("engine features: 0x%x", e.Features())
}

func TestNopOperation(t *testing.T) {
	skipIfNoIOURing(t)

	e, err := New(64)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer e.Close()

	const numNops = 10
	for i := 0; i < numNops; i++ {
		if err := e.PrepNop(uint64(i + 1)); err != nil {
			t.Fatalf("PrepNop(%d) error = %v", i, err)
		}
	}

	if e.SQReady() != numNops {
		t.Errorf("SQReady() = %d, want %d", e.SQReady(), numNops)
	}

	n, err := e.Submit()
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if n != numNops {
		t.Errorf("Submit() = %d, want %d", n, numNops)
	}

	seen := make(map[uint64]bool)
	for i := 0; i < numNops; i++ {
		handle, res, _, err := e.WaitCQE()
		if err != nil {
			t.Fatalf("WaitCQE() error = %v", err)
		}
		if res != 0 {
			t.Errorf("CQE res = %d, want 0", res)
		}
		seen[handle] = true
		e.SeenCQE()
	}

	for i := 1; i <= numNops; i++ {
		if !seen[uint64(i)] {
			t.Errorf("missing completion for handle %d", i)
		}
	}
}

func TestSQFull(t *testing.T) {
	skipIfNoIOURing(t)

	e, err := New(4)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer e.Close()

	sqEntries := e.SQEntries()
	for i := uint32(0); i < sqEntries; i++ {
		if err := e.PrepNop(uint64(i + 1)); err != nil {
			t.Fatalf("PrepNop(%d) unexpected error = %v", i, err)
		}
	}

	if err := e.PrepNop(999); err != ErrSQFull {
		t.Errorf("PrepNop on full queue error = %v, want ErrSQFull", err)
	}

	if _, err := e.Submit(); err != nil {
		t.Fatalf("Submit error = %v", err)
	}

	for i := uint32(0); i < sqEntries; i++ {
		if _, _, _, err := e.WaitCQE(); err != nil {
			t.Fatalf("WaitCQE error = %v", err)
		}
		e.SeenCQE()
	}

	if err := e.PrepNop(1000); err != nil {
		t.Errorf("PrepNop after drain error = %v", err)
	}
}

func TestForEachCQE(t *testing.T) {
	skipIfNoIOURing(t)

	e, err := New(64)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer e.Close()

	const numNops = 5
	for i := 0; i < numNops; i++ {
		e.PrepNop(uint64(i + 1))
	}
	e.SubmitAndWait(uint32(numNops))

	count := e.ForEachCQE(func(handle uint64, res int32, flags uint32) bool {
		if res != 0 {
			t.Errorf("CQE res = %d, want 0", res)
		}
		return true
	})

	if count != numNops {
		t.Errorf("ForEachCQE processed %d, want %d", count, numNops)
	}
	if e.CQReady() != 0 {
		t.Errorf("CQReady() = %d after ForEachCQE, want 0", e.CQReady())
	}
}

// dispatchRecorder is a CompletionTarget that records every completion it
// receives, for tests exercising DrainCompletions.
type dispatchRecorder struct {
	completions []int32
}

func (d *dispatchRecorder) OnComplete(res int32, flags uint32) {
	d.completions = append(d.completions, res)
}

func TestDrainCompletionsDispatch(t *testing.T) {
	skipIfNoIOURing(t)

	e, err := New(64)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer e.Close()

	rec := &dispatchRecorder{}
	handle := e.Register(rec)
	defer e.Unregister(handle)

	const numNops = 3
	for i := 0; i < numNops; i++ {
		if err := e.PrepNop(handle); err != nil {
			t.Fatalf("PrepNop error = %v", err)
		}
	}

	if _, err := e.SubmitAndWait(uint32(numNops)); err != nil {
		t.Fatalf("SubmitAndWait error = %v", err)
	}

	n := e.DrainCompletions()
	if n != numNops {
		t.Errorf("DrainCompletions() = %d, want %d", n, numNops)
	}
	if len(rec.completions) != numNops {
		t.Fatalf("recorder got %d completions, want %d", len(rec.completions), numNops)
	}
	for _, res := range rec.completions {
		if res != 0 {
			t.Errorf("completion res = %d, want 0", res)
		}
	}
}

func TestProbeSupportsServerOps(t *testing.T) {
	skipIfNoIOURing(t)

	e, err := New(64)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer e.Close()

	probe, err := e.Probe()
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}

	t.Logf("last op supported: %d", probe.LastOp())
	t.Logf("supports server ops: %v", probe.SupportsServerOps())
}

func BenchmarkNopSubmit(b *testing.B) {
	e, err := New(1024)
	if err != nil {
		b.Skipf("io_uring unavailable: %v", err)
	}
	defer e.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.PrepNop(uint64(i) + 1)
		e.Submit()
		e.WaitCQE()
		e.SeenCQE()
	}
}

func BenchmarkNopBatch(b *testing.B) {
	e, err := New(1024)
	if err != nil {
		b.Skipf("io_uring unavailable: %v", err)
	}
	defer e.Close()

	const batchSize = 32

	b.ResetTimer()
	for i := 0; i < b.N; i += batchSize {
		for j := 0; j < batchSize && i+j < b.N; j++ {
			e.PrepNop(uint64(i+j) + 1)
		}
		e.Submit()
		for j := 0; j < batchSize && i+j < b.N; j++ {
			e.WaitCQE()
			e.SeenCQE()
		}
	}
}
