package mq

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Jacobbishopxy/pqx/v1/header"
	"github.com/Jacobbishopxy/pqx/v1/log"
	"github.com/Jacobbishopxy/pqx/v1/perr"
)

// Publisher serialises a Command into one AMQP message per entry of
// Command.MailingTo and publishes each to the header exchange.
type Publisher struct {
	client         *Client
	headerExchange string
}

func NewPublisher(client *Client, headerExchange string) *Publisher {
	return &Publisher{client: client, headerExchange: headerExchange}
}

// Publish emits len(cmd.MailingTo) messages, one per mailing target. An
// empty MailingTo publishes zero messages and succeeds.
func (p *Publisher) Publish(cmd Command) error {
	const op = "mq.Publisher.Publish"

	logger := log.Component("mq.publisher")

	base := baseHeaders(cmd.Config)

	body, err := cmd.MarshalJSON()
	if err != nil {
		return perr.New(op, perr.Deserialisation, err)
	}

	for _, target := range cmd.MailingTo {
		headers := header.FromTable(base).XPairs(target).Table()

		if err := p.client.Publish(p.headerExchange, "", headers, body); err != nil {
			return perr.New(op, perr.ProtocolError, err)
		}
		logger.Debug().Interface("target", target).Msg("published command")
	}

	return nil
}

// baseHeaders builds the headers derived from CommandConfig, before any
// per-message mailing-target pairs are merged in. Second-to-millisecond
// conversion happens here, not in the header codec.
func baseHeaders(cfg CommandConfig) amqp.Table {
	b := header.NewBuilder()

	if cfg.Retry != nil {
		b.XRetries(int16(*cfg.Retry))
	}
	if cfg.Poke != nil {
		b.XDelay(int32(time.Duration(*cfg.Poke) * time.Second / time.Millisecond))
	}
	if cfg.WaitingTimeout != nil {
		b.XMessageTTL(int64(time.Duration(*cfg.WaitingTimeout) * time.Second / time.Millisecond))
	}
	if cfg.ConsumingTimeout != nil {
		b.XConsumeTTL(int64(time.Duration(*cfg.ConsumingTimeout) * time.Second / time.Millisecond))
	}

	return b.Table()
}
