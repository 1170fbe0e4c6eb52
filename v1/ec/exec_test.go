package ec_test

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jacobbishopxy/pqx/v1/ec"
)

func TestRunnerCapturesStdoutLinesInOrder(t *testing.T) {
	proc, err := ec.Spawn(ec.Bash{Argv: []string{"printf 'a\\nb\\nc\\n'"}})
	require.NoError(t, err)

	var lines []string
	sinks := ec.Sinks{
		Stdout: func(line string) error {
			lines = append(lines, line)
			return nil
		},
	}

	result, err := ec.NewRunner().Run(context.Background(), proc, sinks)
	require.NoError(t, err)
	assert.Equal(t, int32(0), result.ExitCode)
	assert.Equal(t, []string{"a", "b", "c"}, lines)
}

func TestRunnerReportsNonZeroExit(t *testing.T) {
	proc, err := ec.Spawn(ec.Bash{Argv: []string{"exit 7"}})
	require.NoError(t, err)

	result, err := ec.NewRunner().Run(context.Background(), proc, ec.Sinks{})
	require.NoError(t, err)
	assert.Equal(t, int32(7), result.ExitCode)
}

func TestRunnerSinkErrorAborts(t *testing.T) {
	proc, err := ec.Spawn(ec.Bash{Argv: []string{"printf 'a\\nb\\nc\\n'"}})
	require.NoError(t, err)

	sinks := ec.Sinks{
		Stdout: func(line string) error {
			return assert.AnError
		},
	}

	_, err = ec.NewRunner().Run(context.Background(), proc, sinks)
	assert.Error(t, err)
}

func TestRunnerTimesOutWithoutKillingChild(t *testing.T) {
	proc, err := ec.Spawn(ec.Bash{Argv: []string{"sleep 5"}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = ec.NewRunner().Run(ctx, proc, ec.Sinks{})
	assert.Error(t, err)
	assert.NoError(t, proc.Cmd.Process.Signal(syscall.Signal(0)), "child should still be running")
}
