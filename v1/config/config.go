// Package config defines the connection and topology structs the core
// consumes. Populating them from YAML/JSON is an external collaborator's
// job — this package only defines the shapes.
package config

import (
	"strconv"
	"time"
)

// BrokerConn describes how to reach the AMQP broker.
type BrokerConn struct {
	Host     string
	Port     uint16
	User     string
	Pass     string
	Vhost    string
	UseTLS   bool
}

// URL renders the amqp:// (or amqps://) connection string.
func (b BrokerConn) URL() string {
	scheme := "amqp"
	if b.UseTLS {
		scheme = "amqps"
	}
	vhost := b.Vhost
	return scheme + "://" + b.User + ":" + b.Pass + "@" + b.Host + ":" + strconv.Itoa(int(b.Port)) + "/" + vhost
}

// PersistenceConn describes how to reach the relational store.
type PersistenceConn struct {
	Host     string
	Port     uint16
	User     string
	Pass     string
	Database string
	SSLMode  string
}

// ManagementAPI describes the read-only HTTP inspection endpoint used by
// an inspection CLI verb — not implemented by this module, kept here only
// so the external collaborator has somewhere to put it.
type ManagementAPI struct {
	BaseURL string
	User    string
	Pass    string
}

// HeaderQueueSpec is one HQ_i: its name and the header-match predicate that
// binds it to both the header exchange and the delayed exchange.
type HeaderQueueSpec struct {
	Queue string
	Match string // "any" | "all"
	Kv    map[string]string
}

// Init is the fixed topology descriptor: the five-node graph's names plus
// the per-queue bindings.
type Init struct {
	HeaderExchange  string
	DelayedExchange string
	DeadLetter      string
	DeadLetterQueue string
	DeadLetterTTL   *time.Duration // optional x-message-ttl on the DLQ
	HeaderQueues    []HeaderQueueSpec
}

// RetryDefaults are the Retrier policy's fallback values, each applied when
// a message lacks the corresponding header (x-delay or x-retries).
type RetryDefaults struct {
	DefaultPoke    time.Duration // applied as x-delay when absent
	DefaultRetries int16         // applied as x-retries when absent
}
