package mq_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Jacobbishopxy/pqx/v1/mq"
)

func TestStopSignalRequestStopIsIdempotent(t *testing.T) {
	stop := mq.NewStopSignal()

	stop.RequestStop()
	stop.RequestStop() // must not block on the buffer-1 channel

	select {
	case <-stop.Stopped():
	case <-time.After(50 * time.Millisecond):
		t.Fatal("expected Stopped() to be immediately readable")
	}
}

func TestStopSignalUnstoppedBlocks(t *testing.T) {
	stop := mq.NewStopSignal()

	select {
	case <-stop.Stopped():
		t.Fatal("Stopped() should not be readable without a RequestStop")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestNewSubscriberCancelBeforeConsumeIsNoop(t *testing.T) {
	sub := mq.NewSubscriber(nil, nil, mq.NewStopSignal())
	assert.NoError(t, sub.Cancel(false))
}

func TestGenerateConsumerTagIsUniqueAndPrefixed(t *testing.T) {
	a := mq.GenerateConsumerTag("pqx-sub")
	b := mq.GenerateConsumerTag("pqx-sub")

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "pqx-sub-"))
}
