// Package common holds the single-connection, single-channel AMQP wrapper
// shared by the broker client, subscriber and retry republisher: one
// connection, one channel, a close-notification channel the owner selects
// on alongside its own work loop.
package common

import (
	"crypto/tls"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Jacobbishopxy/pqx/v1/perr"
)

// AMQPConnector owns one *amqp091.Connection and one *amqp091.Channel.
// Connect, Disconnect and the accessors are serialised by a mutex; the
// channel they hand out is not guarded and is used only by the owning task.
type AMQPConnector struct {
	url       string
	tlsConfig *tls.Config

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel

	connErr chan *amqp.Error
	chanErr chan *amqp.Error
}

// NewAMQPConnector builds a connector for url. tlsConfig may be nil for a
// plain amqp:// connection.
func NewAMQPConnector(url string, tlsConfig *tls.Config) *AMQPConnector {
	return &AMQPConnector{url: url, tlsConfig: tlsConfig}
}

// Connect dials the broker and opens one channel. Calling Connect while
// already connected first disconnects.
func (c *AMQPConnector) Connect() error {
	const op = "common.AMQPConnector.Connect"

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		if err := c.disconnectLocked(); err != nil {
			return err
		}
	}

	var conn *amqp.Connection
	var err error
	if c.tlsConfig != nil {
		conn, err = amqp.DialTLS(c.url, c.tlsConfig)
	} else {
		conn, err = amqp.Dial(c.url)
	}
	if err != nil {
		return perr.New(op, perr.ConnectionLost, err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return perr.New(op, perr.ConnectionLost, err)
	}

	c.conn = conn
	c.channel = channel
	c.connErr = make(chan *amqp.Error, 1)
	c.chanErr = make(chan *amqp.Error, 1)
	conn.NotifyClose(c.connErr)
	channel.NotifyClose(c.chanErr)

	return nil
}

// Disconnect closes the channel then the connection, if open.
func (c *AMQPConnector) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectLocked()
}

func (c *AMQPConnector) disconnectLocked() error {
	const op = "common.AMQPConnector.Disconnect"

	var firstErr error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.channel = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.conn = nil
	}
	if firstErr != nil {
		return perr.New(op, perr.ConnectionLost, firstErr)
	}
	return nil
}

// Channel returns the current open channel, or a NotConnected-flavoured
// error (perr.ConnectionLost — no dedicated "not connected" kind is
// defined; the message carries the distinction) if Connect hasn't succeeded.
func (c *AMQPConnector) Channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == nil {
		return nil, perr.New("common.AMQPConnector.Channel", perr.ConnectionLost, errNotConnected)
	}
	return c.channel, nil
}

// ConnErrChan notifies when the underlying connection closes.
func (c *AMQPConnector) ConnErrChan() <-chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connErr
}

// ChanErrChan notifies when the underlying channel closes.
func (c *AMQPConnector) ChanErrChan() <-chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chanErr
}

var errNotConnected = notConnectedError{}

type notConnectedError struct{}

func (notConnectedError) Error() string { return "not connected: no open channel" }
