package mq_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jacobbishopxy/pqx/v1/config"
	"github.com/Jacobbishopxy/pqx/v1/ec"
	"github.com/Jacobbishopxy/pqx/v1/mq"
)

// fakeAcknowledger records the single terminal ack/nack a delivery
// receives, so tests can assert invariant 1 (exactly one disposition).
type fakeAcknowledger struct {
	mu      sync.Mutex
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = true
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func (f *fakeAcknowledger) snapshot() (acked, nacked, requeue bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acked, f.nacked, f.requeue
}

func newDelivery(body []byte, headers amqp.Table) (amqp.Delivery, *fakeAcknowledger) {
	ack := &fakeAcknowledger{}
	return amqp.Delivery{
		Acknowledger: ack,
		Body:         body,
		Headers:      headers,
		DeliveryTag:  1,
	}, ack
}

// fakeStore is an in-memory mq.Store stand-in for engine tests; the real
// SQL behaviour is exercised separately in persistence/postgres_test.go.
type fakeStore struct {
	mu        sync.Mutex
	histories []mq.Command
	results   map[int64]mq.ExecutionResult
	failWrite bool
}

var _ mq.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{results: map[int64]mq.ExecutionResult{}}
}

func (s *fakeStore) CreateSchema(ctx context.Context) error  { return nil }
func (s *fakeStore) DropSchema(ctx context.Context) error    { return nil }
func (s *fakeStore) SchemaExists(ctx context.Context) (bool, error) {
	return true, nil
}

func (s *fakeStore) InsertHistory(ctx context.Context, cmd mq.Command) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite {
		return 0, errors.New("boom")
	}
	s.histories = append(s.histories, cmd)
	return int64(len(s.histories)), nil
}

func (s *fakeStore) InsertResult(ctx context.Context, historyID int64, result mq.ExecutionResult) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite {
		return 0, errors.New("boom")
	}
	s.results[historyID] = result
	return historyID, nil
}

func (s *fakeStore) FindOne(ctx context.Context, historyID int64) (mq.MessageHistory, *mq.MessageResult, error) {
	return mq.MessageHistory{}, nil, nil
}

func (s *fakeStore) FindMany(ctx context.Context, historyIDs []int64) ([]mq.MessageHistory, map[int64]mq.MessageResult, error) {
	return nil, nil, nil
}

func (s *fakeStore) FindByPagination(ctx context.Context, page, pageSize int) (mq.Page, error) {
	return mq.Page{}, nil
}

func pingCommand() mq.Command {
	return mq.Command{Cmd: ec.Ping{Addr: "127.0.0.1"}}
}

func TestConsumerSuccessPathAcksAndPersists(t *testing.T) {
	store := newFakeStore()
	stop := mq.NewStopSignal()

	var successCalled bool
	callbacks := mq.ConsumerCallbacks{
		Consume: func(ctx context.Context, cmd mq.Command) (mq.Outcome, error) {
			return mq.Success(mq.ExecutionResult{ExitCode: 0}), nil
		},
		SuccessCallback: func(cmd mq.Command, result mq.ExecutionResult) error {
			successCalled = true
			return nil
		},
	}
	consumer := mq.NewConsumer(nil, callbacks, store, nil, stop)

	body, err := pingCommand().MarshalJSON()
	require.NoError(t, err)
	d, ack := newDelivery(body, amqp.Table{})

	consumer.HandleDelivery(context.Background(), d)

	acked, nacked, _ := ack.snapshot()
	assert.True(t, acked)
	assert.False(t, nacked)
	assert.True(t, successCalled)
	assert.Len(t, store.histories, 1)
	assert.Len(t, store.results, 1)
}

func TestConsumerDeserialiseFailureDiscards(t *testing.T) {
	store := newFakeStore()
	stop := mq.NewStopSignal()

	var discardErr error
	callbacks := mq.ConsumerCallbacks{
		DiscardCallback: func(err error) error {
			discardErr = err
			return nil
		},
	}
	consumer := mq.NewConsumer(nil, callbacks, store, nil, stop)

	d, ack := newDelivery([]byte("not json"), amqp.Table{})
	consumer.HandleDelivery(context.Background(), d)

	acked, nacked, requeue := ack.snapshot()
	assert.False(t, acked)
	assert.True(t, nacked)
	assert.False(t, requeue)
	assert.Error(t, discardErr)
	assert.Empty(t, store.histories, "no Command exists to persist on deserialise failure")
}

func TestConsumerExecuteErrorDiscardsWithHistoryOnly(t *testing.T) {
	store := newFakeStore()
	stop := mq.NewStopSignal()

	callbacks := mq.ConsumerCallbacks{
		Consume: func(ctx context.Context, cmd mq.Command) (mq.Outcome, error) {
			return mq.Outcome{}, errors.New("exec failed")
		},
	}
	consumer := mq.NewConsumer(nil, callbacks, store, nil, stop)

	body, err := pingCommand().MarshalJSON()
	require.NoError(t, err)
	d, ack := newDelivery(body, amqp.Table{})

	consumer.HandleDelivery(context.Background(), d)

	acked, nacked, requeue := ack.snapshot()
	assert.False(t, acked)
	assert.True(t, nacked)
	assert.False(t, requeue)
	assert.Len(t, store.histories, 1)
	assert.Empty(t, store.results, "no ExecutionResult exists on an execute-error discard")
}

func TestConsumerRequeuePathNacksWithRequeueTrue(t *testing.T) {
	store := newFakeStore()
	stop := mq.NewStopSignal()

	callbacks := mq.ConsumerCallbacks{
		Consume: func(ctx context.Context, cmd mq.Command) (mq.Outcome, error) {
			return mq.Requeue(mq.ExecutionResult{ExitCode: 7}), nil
		},
	}
	consumer := mq.NewConsumer(nil, callbacks, store, nil, stop)

	body, err := pingCommand().MarshalJSON()
	require.NoError(t, err)
	d, ack := newDelivery(body, amqp.Table{})

	consumer.HandleDelivery(context.Background(), d)

	acked, nacked, requeue := ack.snapshot()
	assert.False(t, acked)
	assert.True(t, nacked)
	assert.True(t, requeue)
	assert.Empty(t, store.histories, "requeue is not a terminal handling")
}

func TestConsumerTimeoutClassifiesAsRetryWithNilResult(t *testing.T) {
	store := newFakeStore()
	stop := mq.NewStopSignal()

	var sawNilResult bool
	callbacks := mq.ConsumerCallbacks{
		Consume: func(ctx context.Context, cmd mq.Command) (mq.Outcome, error) {
			<-ctx.Done()
			<-time.After(10 * time.Millisecond) // outlive the caller's deadline
			return mq.Success(mq.ExecutionResult{ExitCode: 0}), nil
		},
		RetryCallback: func(cmd mq.Command, result *mq.ExecutionResult) error {
			sawNilResult = result == nil
			return nil
		},
	}

	// x-retries is already exhausted, so the Retrier's nack(requeue=false)
	// path fires without ever touching its (nil) client.
	retrier := mq.NewRetrier(nil, "", config.RetryDefaults{})
	consumer := mq.NewConsumer(nil, callbacks, store, retrier, stop)

	headers := amqp.Table{"x-consume-ttl": int64(5), "x-retries": int16(-1)}
	body, err := pingCommand().MarshalJSON()
	require.NoError(t, err)
	d, ack := newDelivery(body, headers)

	consumer.HandleDelivery(context.Background(), d)

	_, nacked, requeue := ack.snapshot()
	assert.True(t, nacked)
	assert.False(t, requeue)
	assert.True(t, sawNilResult)
}
