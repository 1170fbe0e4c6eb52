// Package header implements the x-* header protocol that the delay/retry
// pipeline depends on: a fluent Builder for producers and a typed Viewer
// for consumers, both over an amqp091.Table.
package header

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Jacobbishopxy/pqx/v1/perr"
)

// Header keys. Kept as typed constants rather than string literals
// scattered through the codebase.
const (
	XDelay                = "x-delay"
	XRetries              = "x-retries"
	XMessageTTL           = "x-message-ttl"
	XConsumeTTL           = "x-consume-ttl"
	XMatch                = "x-match"
	XDelayedType          = "x-delayed-type"
	XDeadLetterExchange   = "x-dead-letter-exchange"
	XDeadLetterRoutingKey = "x-dead-letter-routing-key"
	XPriority             = "x-priority"
	XConsumerTimeout      = "x-consumer-timeout"
)

// Match is the x-match predicate of a headers-exchange binding.
type Match string

const (
	MatchAny Match = "any"
	MatchAll Match = "all"
)

// Pairs is one mailing target: a set of string->string predicates merged
// into a published message's headers.
type Pairs map[string]string

// Builder mutates an amqp091.Table fluently. Construct one with NewBuilder
// or FromTable: the zero value has no table and its setters panic.
type Builder struct {
	table amqp.Table
}

// NewBuilder starts from an empty table.
func NewBuilder() *Builder {
	return &Builder{table: amqp.Table{}}
}

// FromTable starts from a clone of t so mutating the Builder never mutates
// the caller's table.
func FromTable(t amqp.Table) *Builder {
	b := &Builder{table: amqp.Table{}}
	for k, v := range t {
		b.table[k] = v
	}
	return b
}

// Table returns the underlying amqp091.Table.
func (b *Builder) Table() amqp.Table { return b.table }

func (b *Builder) XDelayedType(exchangeType string) *Builder {
	b.table[XDelayedType] = exchangeType
	return b
}

// XDelay sets the delay in milliseconds, as a signed 32-bit integer per the
// AMQP field-table width the delayed-message plugin expects.
func (b *Builder) XDelay(ms int32) *Builder {
	b.table[XDelay] = ms
	return b
}

// XRetries sets the remaining retry budget as a signed 16-bit integer.
func (b *Builder) XRetries(n int16) *Builder {
	b.table[XRetries] = n
	return b
}

// XMessageTTL sets the queue-side TTL in milliseconds (signed 64-bit).
func (b *Builder) XMessageTTL(ms int64) *Builder {
	b.table[XMessageTTL] = ms
	return b
}

// XConsumeTTL sets the application-level execution timeout in milliseconds
// (signed 64-bit). Not a broker feature — read back by the consumer engine.
func (b *Builder) XConsumeTTL(ms int64) *Builder {
	b.table[XConsumeTTL] = ms
	return b
}

func (b *Builder) XDeadLetterExchange(exchange, routingKey string) *Builder {
	b.table[XDeadLetterExchange] = exchange
	b.table[XDeadLetterRoutingKey] = routingKey
	return b
}

func (b *Builder) XMatch(m Match) *Builder {
	b.table[XMatch] = string(m)
	return b
}

// XPriority sets a consumer's relative delivery priority (signed 16-bit,
// per the RabbitMQ consumer-priorities extension).
func (b *Builder) XPriority(n int16) *Builder {
	b.table[XPriority] = n
	return b
}

// XConsumerTimeout sets the broker-enforced per-delivery ack deadline in
// milliseconds, after which the broker itself closes the channel if the
// consumer hasn't acked/nacked yet.
func (b *Builder) XConsumerTimeout(ms int64) *Builder {
	b.table[XConsumerTimeout] = ms
	return b
}

// XCommonPair merges one mailing-target predicate pair into the table.
func (b *Builder) XCommonPair(k, v string) *Builder {
	b.table[k] = v
	return b
}

// XPairs merges every entry of p into the table.
func (b *Builder) XPairs(p Pairs) *Builder {
	for k, v := range p {
		b.table[k] = v
	}
	return b
}

// Viewer reads typed values back out of an amqp091.Table. Every getter
// fails with the same perr.Config error, "header missing or wrong type";
// XConsumeTTL alone treats an absent header as 0 rather than an error.
type Viewer struct {
	table amqp.Table
}

func NewViewer(t amqp.Table) *Viewer {
	if t == nil {
		t = amqp.Table{}
	}
	return &Viewer{table: t}
}

func (v *Viewer) errFor(key string) error {
	return perr.New("header.Viewer", perr.Config, fmt.Errorf("header %q missing or wrong type", key))
}

func (v *Viewer) Has(key string) bool {
	_, ok := v.table[key]
	return ok
}

func (v *Viewer) XDelay() (int32, error) {
	n, ok := v.table[XDelay].(int32)
	if !ok {
		return 0, v.errFor(XDelay)
	}
	return n, nil
}

func (v *Viewer) XRetries() (int16, error) {
	n, ok := v.table[XRetries].(int16)
	if !ok {
		return 0, v.errFor(XRetries)
	}
	return n, nil
}

func (v *Viewer) XMessageTTL() (int64, error) {
	n, ok := v.table[XMessageTTL].(int64)
	if !ok {
		return 0, v.errFor(XMessageTTL)
	}
	return n, nil
}

// XConsumeTTL returns 0 with no error when the header is absent: absence
// and zero are equivalent (no timeout), so callers are not forced to
// special-case the missing-header error.
func (v *Viewer) XConsumeTTL() (int64, error) {
	raw, ok := v.table[XConsumeTTL]
	if !ok {
		return 0, nil
	}
	n, ok := raw.(int64)
	if !ok {
		return 0, v.errFor(XConsumeTTL)
	}
	return n, nil
}

func (v *Viewer) XMatch() (Match, error) {
	s, ok := v.table[XMatch].(string)
	if !ok {
		return "", v.errFor(XMatch)
	}
	return Match(s), nil
}

func (v *Viewer) XDeadLetterExchange() (string, error) {
	s, ok := v.table[XDeadLetterExchange].(string)
	if !ok {
		return "", v.errFor(XDeadLetterExchange)
	}
	return s, nil
}

func (v *Viewer) Table() amqp.Table { return v.table }
