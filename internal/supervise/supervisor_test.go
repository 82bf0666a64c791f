package supervise_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clawsync/internal/statesync"
	"clawsync/internal/supervise"
)

// recorder counts Run invocations and tracks call ordering across fakes.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == name {
			n++
		}
	}
	return n
}

type fakeRestorer struct {
	rec *recorder
	err error
}

func (f *fakeRestorer) Run(context.Context) error {
	f.rec.record("restore")
	return f.err
}

type fakeCycle struct {
	rec *recorder
	err error
}

func (f *fakeCycle) Run(context.Context) error {
	f.rec.record("cycle")
	return f.err
}

func TestSupervisor_PropagatesChildExitCode(t *testing.T) {
	rec := &recorder{}
	s := supervise.New(&fakeRestorer{rec: rec}, &fakeCycle{rec: rec}, nil, time.Hour, false, statesync.NewNopLogger())

	code, err := s.Run(context.Background(), []string{"sh", "-c", "exit 7"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if code != 7 {
		t.Errorf("Run() code = %d, want 7", code)
	}
}

func TestSupervisor_CleanChildExit(t *testing.T) {
	rec := &recorder{}
	s := supervise.New(&fakeRestorer{rec: rec}, &fakeCycle{rec: rec}, nil, time.Hour, false, statesync.NewNopLogger())

	code, err := s.Run(context.Background(), []string{"true"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if code != 0 {
		t.Errorf("Run() code = %d, want 0", code)
	}
}

func TestSupervisor_MissingCommand(t *testing.T) {
	rec := &recorder{}
	s := supervise.New(&fakeRestorer{rec: rec}, &fakeCycle{rec: rec}, nil, time.Hour, false, statesync.NewNopLogger())

	code, err := s.Run(context.Background(), []string{"/nonexistent/gateway-binary"})
	if err == nil {
		t.Fatal("Run() error = nil, want start failure")
	}
	if code != 1 {
		t.Errorf("Run() code = %d, want 1", code)
	}
}

func TestSupervisor_SignalStopsChild(t *testing.T) {
	rec := &recorder{}
	s := supervise.New(&fakeRestorer{rec: rec}, &fakeCycle{rec: rec}, nil, time.Hour, false, statesync.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	code, err := s.Run(ctx, []string{"sleep", "60"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if code != 143 {
		t.Errorf("Run() code = %d, want 143", code)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("Run() took %v, want prompt SIGTERM shutdown", elapsed)
	}
}

func TestSupervisor_DrainsOneFinalCycle(t *testing.T) {
	rec := &recorder{}
	s := supervise.New(&fakeRestorer{rec: rec}, &fakeCycle{rec: rec}, nil, time.Hour, true, statesync.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	code, err := s.Run(ctx, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if code != 143 {
		t.Errorf("Run() code = %d, want 143", code)
	}

	// The hour-long interval never fired, so the only cycle is the drain.
	if got := rec.count("cycle"); got != 1 {
		t.Errorf("cycle runs = %d, want exactly 1 drain cycle", got)
	}
	if got := rec.count("restore"); got != 1 {
		t.Errorf("restore runs = %d, want 1", got)
	}
}

func TestSupervisor_PeriodicCycles(t *testing.T) {
	rec := &recorder{}
	s := supervise.New(&fakeRestorer{rec: rec}, &fakeCycle{rec: rec}, nil, 20*time.Millisecond, true, statesync.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	if _, err := s.Run(ctx, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Several ticks plus the drain cycle.
	if got := rec.count("cycle"); got < 3 {
		t.Errorf("cycle runs = %d, want at least 3", got)
	}
}

func TestSupervisor_CycleFailureDoesNotStopLoop(t *testing.T) {
	rec := &recorder{}
	cycle := &fakeCycle{rec: rec, err: errors.New("bucket unreachable")}
	s := supervise.New(&fakeRestorer{rec: rec}, cycle, nil, 20*time.Millisecond, true, statesync.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	code, err := s.Run(ctx, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if code != 143 {
		t.Errorf("Run() code = %d, want 143", code)
	}
	if got := rec.count("cycle"); got < 2 {
		t.Errorf("cycle runs = %d, want retries after failure", got)
	}
}

func TestSupervisor_RestoreFailureIsNonFatal(t *testing.T) {
	rec := &recorder{}
	restorer := &fakeRestorer{rec: rec, err: errors.New("remote gone")}
	s := supervise.New(restorer, &fakeCycle{rec: rec}, nil, time.Hour, true, statesync.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	code, err := s.Run(ctx, []string{"true"})
	if err != nil {
		t.Fatalf("Run() error = %v, want restore failure absorbed", err)
	}
	if code != 0 {
		t.Errorf("Run() code = %d, want 0", code)
	}
}

func TestSupervisor_PrelaunchRunsAfterRestore(t *testing.T) {
	rec := &recorder{}
	prelaunch := func(context.Context) error {
		rec.record("prelaunch")
		return nil
	}
	s := supervise.New(&fakeRestorer{rec: rec}, &fakeCycle{rec: rec}, prelaunch, time.Hour, true, statesync.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := s.Run(ctx, []string{"true"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.calls) < 2 || rec.calls[0] != "restore" || rec.calls[1] != "prelaunch" {
		t.Errorf("call order = %v, want restore before prelaunch", rec.calls)
	}
}

func TestSupervisor_PrelaunchFailureIsFatal(t *testing.T) {
	rec := &recorder{}
	prelaunch := func(context.Context) error { return errors.New("state dir unwritable") }
	s := supervise.New(&fakeRestorer{rec: rec}, &fakeCycle{rec: rec}, prelaunch, time.Hour, true, statesync.NewNopLogger())

	code, err := s.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("Run() error = nil, want prelaunch failure")
	}
	if code != 1 {
		t.Errorf("Run() code = %d, want 1", code)
	}
}

func TestSupervisor_DisabledBackupSkipsRestoreAndLoop(t *testing.T) {
	rec := &recorder{}
	s := supervise.New(&fakeRestorer{rec: rec}, &fakeCycle{rec: rec}, nil, 10*time.Millisecond, false, statesync.NewNopLogger())

	if _, err := s.Run(context.Background(), []string{"sleep", "0.1"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := rec.count("restore"); got != 0 {
		t.Errorf("restore runs = %d, want 0 with backup disabled", got)
	}
	if got := rec.count("cycle"); got != 0 {
		t.Errorf("cycle runs = %d, want 0 with backup disabled", got)
	}
}
