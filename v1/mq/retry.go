package mq

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Jacobbishopxy/pqx/v1/config"
	"github.com/Jacobbishopxy/pqx/v1/header"
	"github.com/Jacobbishopxy/pqx/v1/log"
	"github.com/Jacobbishopxy/pqx/v1/perr"
)

// Retrier republishes a retry-classified delivery to the delayed exchange:
// clone headers, default x-delay/x-retries when absent, decrement
// x-retries, and either republish+ack (budget remaining) or
// nack(requeue=false) to the dead-letter path (budget exhausted).
type Retrier struct {
	client          *Client
	delayedExchange string
	defaults        config.RetryDefaults
}

func NewRetrier(client *Client, delayedExchange string, defaults config.RetryDefaults) *Retrier {
	return &Retrier{client: client, delayedExchange: delayedExchange, defaults: defaults}
}

// Retry decides the delivery's fate and ends it: republish to the delayed
// exchange and ack the original, or nack(requeue=false) so the broker's
// dead-letter binding takes over.
func (r *Retrier) Retry(d amqp.Delivery) error {
	const op = "mq.Retrier.Retry"

	viewer := header.NewViewer(d.Headers)

	delay, err := viewer.XDelay()
	if err != nil {
		delay = int32(r.defaults.DefaultPoke.Milliseconds())
	}

	retries, err := viewer.XRetries()
	if err != nil {
		retries = r.defaults.DefaultRetries
	}
	retries--

	if retries < 0 {
		if nackErr := d.Nack(false, false); nackErr != nil {
			return perr.New(op, perr.ProtocolError, nackErr)
		}
		log.Component("mq.retrier").Debug().Msg("retry budget exhausted, routed to dead-letter")
		return nil
	}

	headers := header.FromTable(d.Headers).
		XDelay(delay).
		XRetries(retries).
		Table()

	if err := r.client.Publish(r.delayedExchange, "", headers, d.Body); err != nil {
		return perr.New(op, perr.ProtocolError, err)
	}

	if err := d.Ack(false); err != nil {
		return perr.New(op, perr.ProtocolError, err)
	}

	log.Component("mq.retrier").Debug().Int16("retries_remaining", retries).Msg("republished to delayed exchange")
	return nil
}
