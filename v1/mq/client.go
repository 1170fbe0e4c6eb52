package mq

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Jacobbishopxy/pqx/v1/common"
	"github.com/Jacobbishopxy/pqx/v1/perr"
)

// Client wraps a single AMQP connection and channel with a
// connect/declare/bind/publish surface generalised from a task queue's
// single default queue to the fixed multi-exchange retry topology.
type Client struct {
	conn *common.AMQPConnector
}

func NewClient(conn *common.AMQPConnector) *Client {
	return &Client{conn: conn}
}

func (c *Client) Connect() error    { return c.conn.Connect() }
func (c *Client) Disconnect() error { return c.conn.Disconnect() }

func (c *Client) channel() (*amqp.Channel, error) {
	return c.conn.Channel()
}

// DeclareExchange declares a durable exchange of kind exchangeType
// ("headers", "x-delayed-message", "direct", ...) with optional arguments.
func (c *Client) DeclareExchange(name, exchangeType string, args amqp.Table) error {
	const op = "mq.Client.DeclareExchange"

	ch, err := c.channel()
	if err != nil {
		return perr.New(op, perr.ConnectionLost, err)
	}

	err = ch.ExchangeDeclare(
		name,
		exchangeType,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		args,
	)
	if err != nil {
		return perr.New(op, perr.ProtocolError, err)
	}
	return nil
}

// DeclareQueue declares a durable, client-named queue with optional
// arguments (x-dead-letter-exchange, x-message-ttl, ...).
func (c *Client) DeclareQueue(name string, args amqp.Table) error {
	const op = "mq.Client.DeclareQueue"

	ch, err := c.channel()
	if err != nil {
		return perr.New(op, perr.ConnectionLost, err)
	}

	_, err = ch.QueueDeclare(
		name,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		args,
	)
	if err != nil {
		return perr.New(op, perr.ProtocolError, err)
	}
	return nil
}

// BindQueue binds queue to exchange with the given routing key and
// (for headers exchanges) header-match arguments.
func (c *Client) BindQueue(queue, exchange, routingKey string, args amqp.Table) error {
	const op = "mq.Client.BindQueue"

	ch, err := c.channel()
	if err != nil {
		return perr.New(op, perr.ConnectionLost, err)
	}

	if err := ch.QueueBind(queue, routingKey, exchange, false, args); err != nil {
		return perr.New(op, perr.ProtocolError, err)
	}
	return nil
}

// UnbindQueue removes a binding between queue and exchange.
func (c *Client) UnbindQueue(queue, exchange, routingKey string, args amqp.Table) error {
	const op = "mq.Client.UnbindQueue"

	ch, err := c.channel()
	if err != nil {
		return perr.New(op, perr.ConnectionLost, err)
	}

	if err := ch.QueueUnbind(queue, routingKey, exchange, args); err != nil {
		return perr.New(op, perr.ProtocolError, err)
	}
	return nil
}

// PurgeQueue removes all ready messages from queue.
func (c *Client) PurgeQueue(queue string) (int, error) {
	const op = "mq.Client.PurgeQueue"

	ch, err := c.channel()
	if err != nil {
		return 0, perr.New(op, perr.ConnectionLost, err)
	}

	n, err := ch.QueuePurge(queue, false)
	if err != nil {
		return 0, perr.New(op, perr.ProtocolError, err)
	}
	return n, nil
}

// DeleteQueue deletes queue unconditionally.
func (c *Client) DeleteQueue(queue string) error {
	const op = "mq.Client.DeleteQueue"

	ch, err := c.channel()
	if err != nil {
		return perr.New(op, perr.ConnectionLost, err)
	}

	if _, err := ch.QueueDelete(queue, false, false, false); err != nil {
		return perr.New(op, perr.ProtocolError, err)
	}
	return nil
}

// DeleteExchange deletes exchange unconditionally.
func (c *Client) DeleteExchange(exchange string) error {
	const op = "mq.Client.DeleteExchange"

	ch, err := c.channel()
	if err != nil {
		return perr.New(op, perr.ConnectionLost, err)
	}

	if err := ch.ExchangeDelete(exchange, false, false); err != nil {
		return perr.New(op, perr.ProtocolError, err)
	}
	return nil
}

// Publish sends one message to exchange with routingKey, headers and body.
func (c *Client) Publish(exchange, routingKey string, headers amqp.Table, body []byte) error {
	const op = "mq.Client.Publish"

	ch, err := c.channel()
	if err != nil {
		return perr.New(op, perr.ConnectionLost, err)
	}

	err = ch.Publish(
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			Headers:      headers,
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return perr.New(op, perr.ProtocolError, err)
	}
	return nil
}

// Qos applies channel-level prefetch.
func (c *Client) Qos(prefetchCount, prefetchSize int, global bool) error {
	const op = "mq.Client.Qos"

	ch, err := c.channel()
	if err != nil {
		return perr.New(op, perr.ConnectionLost, err)
	}

	if err := ch.Qos(prefetchCount, prefetchSize, global); err != nil {
		return perr.New(op, perr.ProtocolError, err)
	}
	return nil
}

// Consume registers a consumer and returns its delivery channel.
func (c *Client) Consume(queue, consumerTag string, exclusive, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	const op = "mq.Client.Consume"

	ch, err := c.channel()
	if err != nil {
		return nil, perr.New(op, perr.ConnectionLost, err)
	}

	deliveries, err := ch.Consume(
		queue,
		consumerTag,
		false, // auto-ack: false, the engine acks/nacks explicitly
		exclusive,
		false, // no-local
		noWait,
		args,
	)
	if err != nil {
		return nil, perr.New(op, perr.ProtocolError, err)
	}
	return deliveries, nil
}

// Cancel stops a consumer by tag.
func (c *Client) Cancel(consumerTag string, noWait bool) error {
	const op = "mq.Client.Cancel"

	ch, err := c.channel()
	if err != nil {
		return perr.New(op, perr.ConnectionLost, err)
	}

	if err := ch.Cancel(consumerTag, noWait); err != nil {
		return perr.New(op, perr.ProtocolError, err)
	}
	return nil
}
