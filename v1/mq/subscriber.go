package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/google/uuid"

	"github.com/Jacobbishopxy/pqx/v1/header"
	"github.com/Jacobbishopxy/pqx/v1/log"
	"github.com/Jacobbishopxy/pqx/v1/perr"
)

// SubscribeOptions configures the basic.consume call a Subscriber issues.
// Priority and ConsumerTimeout map to the standard x-priority /
// x-consumer-timeout consume arguments; Exclusive and NoWait are passed
// straight through to the broker.
type SubscribeOptions struct {
	// Priority sets this consumer's relative delivery priority, nil for
	// the broker default.
	Priority *int16
	// ConsumerTimeout sets the broker-enforced per-delivery ack deadline
	// in milliseconds, nil for the broker default.
	ConsumerTimeout *int64
	Exclusive       bool
	NoWait          bool
}

func (o SubscribeOptions) args() amqp.Table {
	b := header.NewBuilder()
	if o.Priority != nil {
		b.XPriority(*o.Priority)
	}
	if o.ConsumerTimeout != nil {
		b.XConsumerTimeout(*o.ConsumerTimeout)
	}
	return b.Table()
}

// GenerateConsumerTag builds a consumer tag unique to this process
// instance, for callers that don't need a stable operator-chosen tag
// across restarts.
func GenerateConsumerTag(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// StopSignal is the single-capacity "please stop" channel the consumer
// engine poisons on a callback or persistence failure, and the subscriber
// loop watches to unwind cleanly. Buffered at 1 so a RequestStop from deep
// inside a delivery handler never blocks.
type StopSignal struct {
	ch chan bool
}

func NewStopSignal() *StopSignal {
	return &StopSignal{ch: make(chan bool, 1)}
}

// RequestStop signals stop, at most once until the channel is drained by a
// receive on Stopped.
func (s *StopSignal) RequestStop() {
	select {
	case s.ch <- false:
	default:
	}
}

// Stopped is readable once RequestStop has fired.
func (s *StopSignal) Stopped() <-chan bool {
	return s.ch
}

// Subscriber binds a Consumer engine to one queue: it registers the AMQP
// consumer, hands each delivery to the engine in turn, and unwinds on a stop
// signal or context cancellation.
type Subscriber struct {
	client      *Client
	consumer    *Consumer
	stop        *StopSignal
	consumerTag string
}

func NewSubscriber(client *Client, consumer *Consumer, stop *StopSignal) *Subscriber {
	return &Subscriber{client: client, consumer: consumer, stop: stop}
}

// Prefetch applies channel-level QoS before consumption starts.
func (s *Subscriber) Prefetch(prefetchCount, prefetchSize int, global bool) error {
	return s.client.Qos(prefetchCount, prefetchSize, global)
}

// Consume registers the consumer tag against queue and runs the delivery
// loop until ctx is cancelled or the engine poisons the stop signal.
// Deliveries are handled one at a time: delivery N+1 is read from the
// channel only after N has been acked, nacked or retry-republished —
// the broker's prefetch bounds how many sit buffered upstream, not how
// many the engine processes concurrently.
func (s *Subscriber) Consume(ctx context.Context, queue, consumerTag string, opts SubscribeOptions) error {
	deliveries, err := s.client.Consume(queue, consumerTag, opts.Exclusive, opts.NoWait, opts.args())
	if err != nil {
		return err
	}
	s.consumerTag = consumerTag

	logger := log.Component("mq.subscriber")
	logger.Info().Str("queue", queue).Str("consumer_tag", consumerTag).Msg("consuming")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("context cancelled, cancelling consumer")
			return s.cancelQuiet(true)
		case <-s.stop.Stopped():
			logger.Warn().Msg("stop signal received, cancelling consumer")
			return s.cancelQuiet(false)
		case d, ok := <-deliveries:
			if !ok {
				logger.Info().Msg("delivery channel closed")
				return nil
			}
			s.consumer.HandleDelivery(ctx, d)
		}
	}
}

// Cancel stops the active consumer without waiting for in-flight
// deliveries to drain.
func (s *Subscriber) Cancel(noWait bool) error {
	const op = "mq.Subscriber.Cancel"
	if s.consumerTag == "" {
		return nil
	}
	if err := s.client.Cancel(s.consumerTag, noWait); err != nil {
		return perr.New(op, perr.ProtocolError, err)
	}
	return nil
}

func (s *Subscriber) cancelQuiet(noWait bool) error {
	if err := s.Cancel(noWait); err != nil {
		log.Component("mq.subscriber").Error().Err(err).Msg("cancel failed")
		return err
	}
	return nil
}

// Resume re-arms consumption after a soft stop: the caller is expected to
// have replaced the poisoned StopSignal (via a fresh Subscriber; StopSignal
// has no reset) before calling this.
func (s *Subscriber) Resume(ctx context.Context, queue, consumerTag string, opts SubscribeOptions) error {
	return s.Consume(ctx, queue, consumerTag, opts)
}

// SoftFailBlock blocks until the stop signal fires or ctx is cancelled —
// the operator-facing half of the poison-then-stop contract.
func (s *Subscriber) SoftFailBlock(ctx context.Context) {
	select {
	case <-s.stop.Stopped():
	case <-ctx.Done():
	}
}
