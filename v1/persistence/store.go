// Package persistence implements the mq.Store contract against a
// relational database. The contract's types (mq.MessageHistory,
// mq.MessageResult, mq.Page, mq.Store) live in v1/mq itself so that
// package never has to import persistence back — only persistence
// imports mq.
package persistence
