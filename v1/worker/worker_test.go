package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jacobbishopxy/pqx/v1/ec"
	"github.com/Jacobbishopxy/pqx/v1/mq"
	"github.com/Jacobbishopxy/pqx/v1/worker"
)

func TestConsumeFuncSuccessExitCodeZero(t *testing.T) {
	consume := worker.NewConsumeFunc(worker.Options{CaptureStdout: true})

	cmd := mq.Command{Cmd: ec.Bash{Argv: []string{"echo", "hello"}}}
	outcome, err := consume(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, mq.OutcomeSuccess, outcome.Kind)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, int32(0), outcome.Result.ExitCode)
	require.NotNil(t, outcome.Result.Result)
	assert.Contains(t, *outcome.Result.Result, "hello")
}

func TestConsumeFuncNonZeroExitRetriesWhenConfigured(t *testing.T) {
	consume := worker.NewConsumeFunc(worker.Options{NonZeroExitIsRetry: true})

	cmd := mq.Command{Cmd: ec.Bash{Argv: []string{"exit", "3"}}}
	outcome, err := consume(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, mq.OutcomeRetry, outcome.Kind)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, int32(3), outcome.Result.ExitCode)
}

func TestConsumeFuncNonZeroExitRequeuesByDefault(t *testing.T) {
	consume := worker.NewConsumeFunc(worker.Options{NonZeroExitIsRetry: false})

	cmd := mq.Command{Cmd: ec.Bash{Argv: []string{"exit", "2"}}}
	outcome, err := consume(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, mq.OutcomeRequeue, outcome.Kind)
}

func TestConsumeFuncSignalKilledMapsToMissingExitCode(t *testing.T) {
	consume := worker.NewConsumeFunc(worker.Options{NonZeroExitIsRetry: true})

	cmd := mq.Command{Cmd: ec.Bash{Argv: []string{"kill", "-KILL", "$$"}}}
	outcome, err := consume(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, mq.OutcomeRetry, outcome.Kind)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, mq.MissingExitCode, outcome.Result.ExitCode)
}

func TestConsumeFuncTimeoutClassifiesAsRetry(t *testing.T) {
	consume := worker.NewConsumeFunc(worker.Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	cmd := mq.Command{Cmd: ec.Bash{Argv: []string{"sleep", "5"}}}
	outcome, err := consume(ctx, cmd)
	require.NoError(t, err)

	assert.Equal(t, mq.OutcomeRetry, outcome.Kind)
	assert.Nil(t, outcome.Result)
}
