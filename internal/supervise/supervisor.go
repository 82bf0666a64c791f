package supervise

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

const (
	// signalExitCode is returned when shutdown was driven by a termination
	// signal rather than the gateway exiting on its own (128 + SIGTERM).
	signalExitCode = 143

	// termGrace is how long the gateway gets between SIGTERM and SIGKILL.
	termGrace = 30 * time.Second

	// drainTimeout bounds the final backup cycle on shutdown.
	drainTimeout = 5 * time.Minute
)

// Logger provides structured logging for the supervisor.
// The args follow slog conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Restorer hydrates local state before the gateway starts.
type Restorer interface {
	Run(ctx context.Context) error
}

// CycleRunner runs one complete backup cycle.
type CycleRunner interface {
	Run(ctx context.Context) error
}

// Supervisor coordinates the restore decision, the gateway child process,
// and the periodic backup loop, and propagates shutdown between them.
type Supervisor struct {
	restorer      Restorer
	cycle         CycleRunner
	prelaunch     func(context.Context) error
	interval      time.Duration
	backupEnabled bool
	logger        Logger
}

// New creates a Supervisor. prelaunch, if non-nil, runs after the restore
// decision and before the gateway starts (gateway config injection).
// When backupEnabled is false both the restore and the backup loop are
// skipped entirely; the gateway is still supervised.
func New(restorer Restorer, cycle CycleRunner, prelaunch func(context.Context) error, interval time.Duration, backupEnabled bool, logger Logger) *Supervisor {
	return &Supervisor{
		restorer:      restorer,
		cycle:         cycle,
		prelaunch:     prelaunch,
		interval:      interval,
		backupEnabled: backupEnabled,
		logger:        logger,
	}
}

// Run executes the full lifecycle: restore once, launch the gateway from
// argv (no child when argv is empty), run backup cycles every interval, and
// shut everything down when ctx is canceled or the gateway exits.
// Cancellation of ctx is the termination signal from the container runtime.
// Returns the process exit code to propagate outward.
func (s *Supervisor) Run(ctx context.Context, argv []string) (int, error) {
	if s.backupEnabled {
		if err := s.restorer.Run(ctx); err != nil {
			// Non-fatal: boot continues with whatever local state exists.
			s.logger.Error("restore failed, continuing with local state", "error", err)
		}
	}

	if s.prelaunch != nil {
		if err := s.prelaunch(ctx); err != nil {
			return 1, fmt.Errorf("preparing gateway state: %w", err)
		}
	}

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loopDone := make(chan struct{})
	if s.backupEnabled {
		go s.backupLoop(loopCtx, loopDone)
	} else {
		close(loopDone)
	}

	if len(argv) == 0 {
		<-ctx.Done()
		s.logger.Info("shutdown signal received")
		stopLoop()
		<-loopDone
		return signalExitCode, nil
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		stopLoop()
		<-loopDone
		return 1, fmt.Errorf("starting gateway %s: %w", argv[0], err)
	}
	s.logger.Info("gateway started", "command", argv[0], "pid", cmd.Process.Pid)

	childDone := make(chan error, 1)
	go func() { childDone <- cmd.Wait() }()

	var code int
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, stopping gateway", "pid", cmd.Process.Pid)
		s.terminate(cmd, childDone)
		code = signalExitCode
	case waitErr := <-childDone:
		code = exitCode(cmd, waitErr)
		s.logger.Info("gateway exited", "code", code)
	}

	stopLoop()
	<-loopDone
	return code, nil
}

// terminate sends the gateway a graceful SIGTERM and waits for it to exit,
// escalating to SIGKILL after the grace period.
func (s *Supervisor) terminate(cmd *exec.Cmd, childDone <-chan error) {
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		s.logger.Warn("signaling gateway failed", "error", err)
	}

	select {
	case <-childDone:
	case <-time.After(termGrace):
		s.logger.Warn("gateway did not exit within grace period, killing", "pid", cmd.Process.Pid)
		if err := cmd.Process.Kill(); err != nil {
			s.logger.Error("killing gateway failed", "error", err)
		}
		<-childDone
	}
}

// backupLoop runs one cycle per interval. At most one cycle executes at a
// time; a running cycle is never interrupted by the next tick. On shutdown
// the loop drains rather than aborts: it runs exactly one final cycle under
// its own deadline before reporting stopped, since last-write durability is
// the whole point of the sidecar.
func (s *Supervisor) backupLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			if err := s.cycle.Run(drainCtx); err != nil {
				s.logger.Error("final backup cycle failed", "error", err)
			}
			cancel()
			return
		case <-timer.C:
			if err := s.cycle.Run(ctx); err != nil {
				// Absorbed: the next scheduled cycle retries.
				s.logger.Error("backup cycle failed", "error", err)
			}
			timer.Reset(s.interval)
		}
	}
}
