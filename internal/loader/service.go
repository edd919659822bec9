package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// DefaultGracePeriod is how long a service gets to exit after an interrupt
// before it is killed.
const DefaultGracePeriod = 5 * time.Second

// Service loads units by (re)starting the program's entry file as a
// long-running process. Whatever unit changed, the previous process group
// is interrupted, given a grace period, killed if still running, and the
// entry is started again with the changed path in AGAIN_ORIGINAL. Load
// returns once the new process has started.
type Service struct {
	Command     string
	Dir         string
	Stdout      io.Writer
	Stderr      io.Writer
	GracePeriod time.Duration
	Logger      *slog.Logger

	mu      sync.Mutex
	current *process
}

type process struct {
	cmd     *exec.Cmd
	scratch string
	done    chan struct{}
}

// Retains implements Retainer. A started process may still be opening the
// staged entry copy after Load returns; the copy is removed when it exits.
func (s *Service) Retains() bool { return true }

// Load implements Loader.
func (s *Service) Load(_ context.Context, req Request) error {
	target := serviceTarget(req)

	argv, err := Argv(s.Command, target)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	// The process outlives the load call, so it is not bound to ctx.
	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec
	cmd.Dir = s.Dir
	cmd.Env = requestEnv(req)
	cmd.Stdout = orDefault(s.Stdout, os.Stdout)
	cmd.Stderr = orDefault(s.Stderr, os.Stderr)
	cmd.WaitDelay = s.grace()
	startInGroup(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrLoad, req.Original, err)
	}

	p := &process{cmd: cmd, done: make(chan struct{})}
	if target == req.Path {
		p.scratch = req.Scratch
	}

	s.current = p

	go s.wait(p)

	s.logger().Debug("service started",
		slog.String("path", target),
		slog.String("changed", req.Original),
		slog.Int("pid", cmd.Process.Pid),
		slog.Bool("reloaded", req.Reloaded),
	)

	return nil
}

// serviceTarget is the file a service runs: the entry, unless the load has
// no entry or is for the entry itself (possibly through a staged copy).
func serviceTarget(req Request) string {
	if req.Entry == "" || req.Original == "" || req.Original == req.Entry {
		return req.Path
	}

	return req.Entry
}

func (s *Service) wait(p *process) {
	defer close(p.done)

	waitErr := p.cmd.Wait()

	if p.scratch != "" {
		if err := os.RemoveAll(p.scratch); err != nil {
			s.logger().Warn("removing reload scratch directory",
				slog.String("dir", p.scratch),
				slog.String("error", err.Error()),
			)
		}
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		s.logger().Error("service wait failed", slog.String("error", waitErr.Error()))
		return
	}

	s.logger().Debug("service exited",
		slog.Int("pid", p.cmd.Process.Pid),
		slog.Int("code", p.cmd.ProcessState.ExitCode()),
	)
}

// Stop terminates the running process, if any, and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
}

// Running reports whether a process started by the service is still alive.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return false
	}

	select {
	case <-s.current.done:
		return false
	default:
		return true
	}
}

// stopLocked interrupts the whole process group so children holding the
// output pipes go down too. It returns within the grace period plus the
// wait delay.
func (s *Service) stopLocked() {
	p := s.current
	if p == nil {
		return
	}

	s.current = nil

	select {
	case <-p.done:
		return
	default:
	}

	if err := interruptGroup(p.cmd.Process); err != nil {
		_ = killGroup(p.cmd.Process)
	}

	select {
	case <-p.done:
	case <-time.After(s.grace()):
		s.logger().Warn("service ignored interrupt, killing", slog.Int("pid", p.cmd.Process.Pid))
		_ = killGroup(p.cmd.Process)
		<-p.done
	}
}

func (s *Service) grace() time.Duration {
	if s.GracePeriod > 0 {
		return s.GracePeriod
	}

	return DefaultGracePeriod
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}

	return slog.Default()
}
