//go:build integration

package mq_test

import (
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"github.com/Jacobbishopxy/pqx/v1/common"
	"github.com/Jacobbishopxy/pqx/v1/config"
	"github.com/Jacobbishopxy/pqx/v1/header"
	"github.com/Jacobbishopxy/pqx/v1/mq"
)

func headerViewerRetries(d amqp.Delivery) (int16, error) {
	return header.NewViewer(d.Headers).XRetries()
}

func dialTestClient(t *testing.T) *mq.Client {
	t.Helper()
	url := os.Getenv("TEST_AMQP_URL")
	if url == "" {
		t.Skip("skipping integration test: TEST_AMQP_URL not set")
	}

	conn := common.NewAMQPConnector(url, nil)
	require.NoError(t, conn.Connect())
	t.Cleanup(func() { _ = conn.Disconnect() })

	return mq.NewClient(conn)
}

// TestRetrierRepublishesWithDecrementedBudget exercises the live republish
// path: a message with two retries left is republished to the delayed
// exchange with x-retries decremented to one, and the original delivery is
// acked, not nacked.
func TestRetrierRepublishesWithDecrementedBudget(t *testing.T) {
	client := dialTestClient(t)

	const (
		delayedExchange = "pqx.test.delayed"
		scratchQueue    = "pqx.test.retry.scratch"
	)

	require.NoError(t, client.DeclareExchange(delayedExchange, mq.ExchangeTypeDelayedMessage, amqp.Table{
		"x-delayed-type": "direct",
	}))
	t.Cleanup(func() { _ = client.DeleteExchange(delayedExchange) })

	require.NoError(t, client.DeclareQueue(scratchQueue, nil))
	t.Cleanup(func() { _ = client.DeleteQueue(scratchQueue) })
	require.NoError(t, client.BindQueue(scratchQueue, delayedExchange, "", nil))

	retrier := mq.NewRetrier(client, delayedExchange, config.RetryDefaults{
		DefaultPoke:    time.Second,
		DefaultRetries: 3,
	})

	require.NoError(t, client.Publish(delayedExchange, "", amqp.Table{
		"x-delay":   int32(0),
		"x-retries": int16(2),
	}, []byte(`{"probe":true}`)))

	deliveries, err := client.Consume(scratchQueue, "pqx-test-retry-consumer", false, false, nil)
	require.NoError(t, err)

	var first amqp.Delivery
	select {
	case first = <-deliveries:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for initial delivery")
	}

	require.NoError(t, retrier.Retry(first))

	select {
	case redelivered := <-deliveries:
		retries, err := headerViewerRetries(redelivered)
		require.NoError(t, err)
		require.EqualValues(t, 1, retries)
		require.NoError(t, redelivered.Ack(false))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for republished delivery")
	}
}
