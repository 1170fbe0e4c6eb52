package ec

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/Jacobbishopxy/pqx/v1/perr"
)

// LineSink receives one line of process output at a time. An error from a
// sink aborts the runner and is surfaced as a perr.Execution error.
type LineSink func(line string) error

// Sinks bundles the stdout/stderr callbacks for one Run call. Either may be
// nil, in which case that pipe is drained and discarded.
type Sinks struct {
	Stdout LineSink
	Stderr LineSink
}

// lineBufferLimit bounds a single line; exceeding it fails the draining task
// rather than growing bufio.Scanner's buffer without bound.
const lineBufferLimit = 1 << 20 // 1 MiB

// Runner drains a Process's stdout/stderr concurrently and waits for exit.
//
// Each pipe is drained by a producer goroutine (reads lines, sends on a
// channel of capacity 1) and a consumer goroutine (calls the sink). The
// bounded channel gives backpressure: if the sink is slow the producer
// blocks on the channel send, the OS pipe buffer fills, and the child
// blocks on write — memory use stays bounded independent of output volume.
//
// If ctx is cancelled (consume-ttl exceeded) before both pipes reach EOF and
// Wait returns, Run returns a perr.Timeout error immediately and abandons
// the still-running drain goroutines; the child process is not killed, it
// is left to exit on its own.
type Runner struct{}

func NewRunner() *Runner { return &Runner{} }

// Result is the outcome of a completed (non-timed-out) Run.
type Result struct {
	ExitCode int32 // missing code (signal-killed) is reported as -1 here; callers map that to 1 per the wire schema.
}

func (r *Runner) Run(ctx context.Context, proc *Process, sinks Sinks) (*Result, error) {
	const op = "ec.Runner.Run"

	done := make(chan runOutcome, 1)
	go func() {
		done <- r.drainAndWait(proc, sinks)
	}()

	select {
	case <-ctx.Done():
		return nil, perr.New(op, perr.Timeout, ctx.Err())
	case outcome := <-done:
		if outcome.err != nil {
			return nil, outcome.err
		}
		return &Result{ExitCode: outcome.exitCode}, nil
	}
}

type runOutcome struct {
	exitCode int32
	err      error
}

func (r *Runner) drainAndWait(proc *Process, sinks Sinks) runOutcome {
	const op = "ec.Runner.Run"

	g := new(errgroup.Group)

	if sinks.Stdout != nil {
		g.Go(func() error { return drainPipe(proc.Stdout, sinks.Stdout) })
	} else {
		g.Go(func() error { _, err := io.Copy(io.Discard, proc.Stdout); return err })
	}

	if sinks.Stderr != nil {
		g.Go(func() error { return drainPipe(proc.Stderr, sinks.Stderr) })
	} else {
		g.Go(func() error { _, err := io.Copy(io.Discard, proc.Stderr); return err })
	}

	drainErr := g.Wait()

	err := proc.Cmd.Wait()
	if drainErr != nil {
		return runOutcome{err: perr.New(op, perr.Execution, drainErr)}
	}

	exitCode, exitErr := classifyExit(err)
	if exitErr != nil {
		return runOutcome{err: perr.New(op, perr.Execution, exitErr)}
	}
	return runOutcome{exitCode: exitCode}
}

// drainPipe reads r line-by-line and forwards each line through a
// capacity-1 channel to the sink, keeping the producer/consumer split.
func drainPipe(r io.Reader, sink LineSink) error {
	lines := make(chan string, 1)
	errs := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), lineBufferLimit)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("read pipe: %w", err)
			return
		}
		errs <- nil
	}()

	for line := range lines {
		if err := sink(line); err != nil {
			return fmt.Errorf("sink: %w", err)
		}
	}
	return <-errs
}

// classifyExit turns a Cmd.Wait error into an exit code or a genuine
// execution error. A nil error is exit code 0; an *exec.ExitError carries
// the real code, or -1 when the process was killed by a signal.
func classifyExit(waitErr error) (int32, error) {
	if waitErr == nil {
		return 0, nil
	}
	type exitCoder interface{ ExitCode() int }
	if ee, ok := waitErr.(exitCoder); ok {
		return int32(ee.ExitCode()), nil
	}
	return 0, waitErr
}
