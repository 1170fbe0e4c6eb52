package mq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Jacobbishopxy/pqx/v1/config"
	"github.com/Jacobbishopxy/pqx/v1/header"
	"github.com/Jacobbishopxy/pqx/v1/perr"
)

// Exchange types used by the topology.
const (
	ExchangeTypeHeaders        = "headers"
	ExchangeTypeDelayedMessage = "x-delayed-message"
	ExchangeTypeDirect         = "direct"
)

// Topology declares and binds the fixed five-node graph: a header
// exchange, a delayed exchange, a dead-letter exchange, one header queue
// per mailing-target predicate, and one dead-letter queue.
type Topology struct {
	client *Client
	init   config.Init
}

func NewTopology(client *Client, init config.Init) *Topology {
	return &Topology{client: client, init: init}
}

// Declare brings up every exchange, queue and binding. It is idempotent:
// re-declaring with identical arguments is a broker-side no-op.
func (t *Topology) Declare() error {
	const op = "mq.Topology.Declare"

	if err := t.client.DeclareExchange(t.init.HeaderExchange, ExchangeTypeHeaders, nil); err != nil {
		return perr.New(op, perr.ProtocolError, err)
	}

	delayedArgs := amqp.Table{header.XDelayedType: ExchangeTypeHeaders}
	if err := t.client.DeclareExchange(t.init.DelayedExchange, ExchangeTypeDelayedMessage, delayedArgs); err != nil {
		return perr.New(op, perr.ProtocolError, err)
	}

	if err := t.client.DeclareExchange(t.init.DeadLetter, ExchangeTypeDirect, nil); err != nil {
		return perr.New(op, perr.ProtocolError, err)
	}

	for _, hq := range t.init.HeaderQueues {
		queueArgs := amqp.Table{header.XDeadLetterExchange: t.init.DeadLetter}
		if err := t.client.DeclareQueue(hq.Queue, queueArgs); err != nil {
			return perr.New(op, perr.ProtocolError, fmt.Errorf("declare %s: %w", hq.Queue, err))
		}

		bindArgs := header.NewBuilder().XMatch(header.Match(hq.Match)).XPairs(hq.Kv).Table()

		if err := t.client.BindQueue(hq.Queue, t.init.HeaderExchange, "", bindArgs); err != nil {
			return perr.New(op, perr.ProtocolError, fmt.Errorf("bind %s to %s: %w", hq.Queue, t.init.HeaderExchange, err))
		}
		if err := t.client.BindQueue(hq.Queue, t.init.DelayedExchange, "", bindArgs); err != nil {
			return perr.New(op, perr.ProtocolError, fmt.Errorf("bind %s to %s: %w", hq.Queue, t.init.DelayedExchange, err))
		}
	}

	dlqArgs := amqp.Table{}
	if t.init.DeadLetterTTL != nil {
		dlqArgs[header.XMessageTTL] = int64(*t.init.DeadLetterTTL / time.Millisecond)
	}
	if err := t.client.DeclareQueue(t.init.DeadLetterQueue, dlqArgs); err != nil {
		return perr.New(op, perr.ProtocolError, fmt.Errorf("declare %s: %w", t.init.DeadLetterQueue, err))
	}
	// The DLQ binds to the DLX with an empty routing key: the DLX is a
	// direct exchange and dead-lettered messages carry no meaningful
	// routing key of their own.
	if err := t.client.BindQueue(t.init.DeadLetterQueue, t.init.DeadLetter, "", nil); err != nil {
		return perr.New(op, perr.ProtocolError, fmt.Errorf("bind %s to %s: %w", t.init.DeadLetterQueue, t.init.DeadLetter, err))
	}

	return nil
}

// Teardown deletes every queue and exchange in the topology, in
// dependency order (queues before exchanges).
func (t *Topology) Teardown() error {
	const op = "mq.Topology.Teardown"

	for _, hq := range t.init.HeaderQueues {
		if err := t.client.DeleteQueue(hq.Queue); err != nil {
			return perr.New(op, perr.ProtocolError, err)
		}
	}
	if err := t.client.DeleteQueue(t.init.DeadLetterQueue); err != nil {
		return perr.New(op, perr.ProtocolError, err)
	}
	for _, ex := range []string{t.init.HeaderExchange, t.init.DelayedExchange, t.init.DeadLetter} {
		if err := t.client.DeleteExchange(ex); err != nil {
			return perr.New(op, perr.ProtocolError, err)
		}
	}
	return nil
}
