package mq

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Jacobbishopxy/pqx/v1/header"
	"github.com/Jacobbishopxy/pqx/v1/log"
	"github.com/Jacobbishopxy/pqx/v1/perr"
)

// OutcomeKind classifies what a ConsumeFunc decided.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetry
	OutcomeRequeue
)

// Outcome is the Success(r) / Retry(Some r | None) / Failure(r) union the
// consume step returns. Result is nil for a timed-out retry.
type Outcome struct {
	Kind   OutcomeKind
	Result *ExecutionResult
}

func Success(r ExecutionResult) Outcome   { return Outcome{Kind: OutcomeSuccess, Result: &r} }
func RetryWith(r ExecutionResult) Outcome { return Outcome{Kind: OutcomeRetry, Result: &r} }
func RetryTimedOut() Outcome              { return Outcome{Kind: OutcomeRetry, Result: nil} }
func Requeue(r ExecutionResult) Outcome   { return Outcome{Kind: OutcomeRequeue, Result: &r} }

// ConsumeFunc executes one Command and classifies the outcome. Returning a
// non-nil error means "discard": the delivery is dead-lettered and no
// retry is attempted.
type ConsumeFunc func(ctx context.Context, cmd Command) (Outcome, error)

// ConsumerCallbacks are the engine's best-effort notification hooks,
// expressed as plain function fields rather than a single-method
// interface. A callback error flips the subscriber's stop signal and
// otherwise does not block the ack/nack that follows it — except a
// RetryCallback error, which skips the retrier so the delivery is neither
// republished nor acked/nacked.
type ConsumerCallbacks struct {
	Consume         ConsumeFunc
	SuccessCallback func(cmd Command, result ExecutionResult) error
	RetryCallback   func(cmd Command, result *ExecutionResult) error
	DiscardCallback func(err error) error
	RequeueCallback func(cmd Command, result ExecutionResult) error
}

// Consumer is the state machine that drives one delivery end to end:
// deserialise, execute with timeout, classify, dispatch to
// {ack, retry, requeue, discard}, persist, republish on retry.
type Consumer struct {
	client    *Client
	callbacks ConsumerCallbacks
	store     Store
	retrier   *Retrier
	stop      *StopSignal
}

func NewConsumer(client *Client, callbacks ConsumerCallbacks, store Store, retrier *Retrier, stop *StopSignal) *Consumer {
	return &Consumer{client: client, callbacks: callbacks, store: store, retrier: retrier, stop: stop}
}

// HandleDelivery runs one delivery through the full state machine. It never
// returns an error that the caller must act on beyond logging. Every path
// terminates in an ack, a nack, or a retry-republish+ack, per invariant 1,
// except the retry path when RetryCallback or the Retrier fails: the stop
// signal is poisoned and the delivery is left unacknowledged.
func (c *Consumer) HandleDelivery(ctx context.Context, d amqp.Delivery) {
	logger := log.Component("mq.consumer")

	var cmd Command
	if err := cmd.UnmarshalJSON(d.Body); err != nil {
		c.runDiscardCallback(err)
		c.nack(d, false, "discard: deserialisation")
		return
	}

	viewer := header.NewViewer(d.Headers)
	consumeTTLms, _ := viewer.XConsumeTTL()

	execCtx := ctx
	var cancel context.CancelFunc
	if consumeTTLms > 0 {
		execCtx, cancel = context.WithTimeout(ctx, time.Duration(consumeTTLms)*time.Millisecond)
		defer cancel()
	}

	outcome, execErr, timedOut := c.execute(execCtx, cmd)

	switch {
	case timedOut:
		logger.Warn().Msg("execution timed out, routing to retry")
		c.handleRetry(ctx, d, cmd, RetryTimedOut())
	case execErr != nil:
		c.handleDiscard(ctx, d, cmd, execErr)
	case outcome.Kind == OutcomeSuccess:
		c.handleSuccess(ctx, d, cmd, *outcome.Result)
	case outcome.Kind == OutcomeRetry:
		c.handleRetry(ctx, d, cmd, outcome)
	case outcome.Kind == OutcomeRequeue:
		c.handleRequeue(d, cmd, *outcome.Result)
	}
}

type execResult struct {
	outcome Outcome
	err     error
}

func (c *Consumer) execute(ctx context.Context, cmd Command) (Outcome, error, bool) {
	done := make(chan execResult, 1)
	go func() {
		outcome, err := c.callbacks.Consume(ctx, cmd)
		done <- execResult{outcome: outcome, err: err}
	}()

	select {
	case <-ctx.Done():
		return Outcome{}, nil, true
	case r := <-done:
		return r.outcome, r.err, false
	}
}

func (c *Consumer) handleSuccess(ctx context.Context, d amqp.Delivery, cmd Command, result ExecutionResult) {
	c.persistTerminal(ctx, cmd, &result)

	if c.callbacks.SuccessCallback != nil {
		if err := c.callbacks.SuccessCallback(cmd, result); err != nil {
			c.poisonStop("success_callback", err)
		}
	}

	c.ack(d)
}

func (c *Consumer) handleRetry(ctx context.Context, d amqp.Delivery, cmd Command, outcome Outcome) {
	c.persistTerminal(ctx, cmd, outcome.Result)

	if c.callbacks.RetryCallback != nil {
		if err := c.callbacks.RetryCallback(cmd, outcome.Result); err != nil {
			// Stop is signalled before republishing, so a failing
			// RetryCallback skips the republish entirely — the message is
			// redelivered only by a worker restart.
			c.poisonStop("retry_callback", err)
			return
		}
	}

	if err := c.retrier.Retry(d); err != nil {
		c.poisonStop("retrier", err)
	}
}

func (c *Consumer) handleRequeue(d amqp.Delivery, cmd Command, result ExecutionResult) {
	if c.callbacks.RequeueCallback != nil {
		if err := c.callbacks.RequeueCallback(cmd, result); err != nil {
			c.poisonStop("requeue_callback", err)
		}
	}
	c.nack(d, true, "requeue")
}

func (c *Consumer) handleDiscard(ctx context.Context, d amqp.Delivery, cmd Command, execErr error) {
	// The Command deserialised successfully but consume() itself returned
	// an error: we have a Command to persist, but no ExecutionResult was
	// produced.
	c.persistTerminal(ctx, cmd, nil)
	c.runDiscardCallback(execErr)
	c.nack(d, false, "discard: execution error")
}

func (c *Consumer) runDiscardCallback(err error) {
	if c.callbacks.DiscardCallback == nil {
		return
	}
	if cbErr := c.callbacks.DiscardCallback(err); cbErr != nil {
		c.poisonStop("discard_callback", cbErr)
	}
}

// persistTerminal writes the history row (and, when present, the linked
// result row) for one terminal handling. A failure here is a
// perr.Persistence error: it poisons the stop signal so the worker shuts
// down rather than silently losing history, but it never blocks the
// ack/nack that follows (invariant 1 always holds).
func (c *Consumer) persistTerminal(ctx context.Context, cmd Command, result *ExecutionResult) {
	if c.store == nil {
		return
	}

	historyID, err := c.store.InsertHistory(ctx, cmd)
	if err != nil {
		c.poisonStop("persistence.InsertHistory", perr.New("mq.Consumer.persistTerminal", perr.Persistence, err))
		return
	}

	if result == nil {
		return
	}

	if _, err := c.store.InsertResult(ctx, historyID, *result); err != nil {
		c.poisonStop("persistence.InsertResult", perr.New("mq.Consumer.persistTerminal", perr.Persistence, err))
	}
}

func (c *Consumer) poisonStop(source string, err error) {
	log.Component("mq.consumer").Error().Err(err).Str("source", source).Msg("callback or persistence failed, poisoning stop signal")
	c.stop.RequestStop()
}

func (c *Consumer) ack(d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		log.Component("mq.consumer").Error().Err(err).Msg("ack failed")
	}
}

func (c *Consumer) nack(d amqp.Delivery, requeue bool, reason string) {
	if err := d.Nack(false, requeue); err != nil {
		log.Component("mq.consumer").Error().Err(err).Str("reason", reason).Msg("nack failed")
	}
}
