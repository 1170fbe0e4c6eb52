// Package worker wires the process runner (v1/ec) into the consumer
// engine (v1/mq) as a mq.ConsumeFunc — the application-layer glue the
// original kept in pqx-app/src/execution.rs, re-expressed as one function
// instead of a trait implementation.
package worker

import (
	"context"
	"strings"

	"github.com/Jacobbishopxy/pqx/v1/ec"
	"github.com/Jacobbishopxy/pqx/v1/log"
	"github.com/Jacobbishopxy/pqx/v1/mq"
	"github.com/Jacobbishopxy/pqx/v1/perr"
)

// Options configures how a spawned command's stdout is turned into an
// ExecutionResult.Result.
type Options struct {
	// CaptureStdout, when true, joins every stdout line into
	// ExecutionResult.Result. When false, stdout is drained and discarded.
	CaptureStdout bool
	// NonZeroExitIsRetry classifies a non-zero exit code as Retry (the
	// command may succeed on a later attempt) rather than Requeue. Most
	// deployments want this; a command whose non-zero exit is a permanent
	// rejection (bad arguments, missing binary) should set this false and
	// classify via its own wrapping instead.
	NonZeroExitIsRetry bool
}

// NewConsumeFunc builds the mq.ConsumeFunc that spawns cmd.Cmd, drains its
// output and classifies the outcome by exit code:
//
//   - exit 0                              -> Success
//   - non-zero, NonZeroExitIsRetry         -> Retry
//   - non-zero, otherwise                  -> Requeue
//   - spawn or drain failure               -> discard (returned as error)
//
// A context deadline exceeded while draining surfaces from the runner as a
// perr.Timeout error, which is returned as RetryTimedOut() with a nil
// error, matching the consumer engine's own ctx.Done() classification.
func NewConsumeFunc(opts Options) mq.ConsumeFunc {
	logger := log.Component("worker")
	runner := ec.NewRunner()

	return func(ctx context.Context, cmd mq.Command) (mq.Outcome, error) {
		proc, err := ec.Spawn(cmd.Cmd)
		if err != nil {
			return mq.Outcome{}, perr.New("worker.Consume", perr.Execution, err)
		}

		var out strings.Builder
		sinks := ec.Sinks{}
		if opts.CaptureStdout {
			sinks.Stdout = func(line string) error {
				out.WriteString(line)
				out.WriteByte('\n')
				return nil
			}
		}

		result, err := runner.Run(ctx, proc, sinks)
		if err != nil {
			if perr.Is(err, perr.Timeout) {
				return mq.RetryTimedOut(), nil
			}
			return mq.Outcome{}, err
		}

		logger.Debug().Int32("exit_code", result.ExitCode).Msg("command finished")

		exitCode := result.ExitCode
		if exitCode < 0 {
			// A signal-killed child has no real exit status (Go's
			// ExitError.ExitCode() reports -1); the wire schema has no
			// negative-code case, so it is reported as MissingExitCode.
			exitCode = mq.MissingExitCode
		}

		var resultText *string
		if opts.CaptureStdout {
			if text := out.String(); text != "" {
				resultText = &text
			}
		}
		er := mq.ExecutionResult{ExitCode: exitCode, Result: resultText}

		switch {
		case exitCode == 0:
			return mq.Success(er), nil
		case opts.NonZeroExitIsRetry:
			return mq.RetryWith(er), nil
		default:
			return mq.Requeue(er), nil
		}
	}
}
