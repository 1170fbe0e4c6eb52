package mq

import (
	"context"
	"time"
)

// MessageHistory is one row per execution attempt.
type MessageHistory struct {
	ID               int64
	MailingTo        []map[string]string
	Retry            *uint8
	Poke             *uint16
	WaitingTimeout   *uint32
	ConsumingTimeout *uint32
	Cmd              Command
	CreatedAt        time.Time
}

// MessageResult is one row per terminal outcome, foreign-keyed to the
// history row written in the same handling.
type MessageResult struct {
	ID        int64
	HistoryID int64
	ExitCode  int32
	Result    *string
	CreatedAt time.Time
}

// Page is one page of history rows with their linked results; a history
// row with no linked result yet has no entry in Results.
type Page struct {
	History []MessageHistory
	Results map[int64]MessageResult // keyed by MessageHistory.ID
	Total   int64
}

// Store is the persistence contract the consumer engine writes to at
// every terminal outcome. Its SQL/ORM implementation lives in a separate
// package (v1/persistence) that imports mq for these types — mq itself
// has no dependency in the other direction, so the two packages never
// form an import cycle.
type Store interface {
	// CreateSchema creates the history/result relations if they do not
	// already exist (idempotent — a no-op when they do).
	CreateSchema(ctx context.Context) error
	// DropSchema drops both relations.
	DropSchema(ctx context.Context) error
	// SchemaExists reports whether both relations exist.
	SchemaExists(ctx context.Context) (bool, error)

	InsertHistory(ctx context.Context, cmd Command) (historyID int64, err error)
	InsertResult(ctx context.Context, historyID int64, result ExecutionResult) (resultID int64, err error)

	FindOne(ctx context.Context, historyID int64) (MessageHistory, *MessageResult, error)
	FindMany(ctx context.Context, historyIDs []int64) ([]MessageHistory, map[int64]MessageResult, error)
	FindByPagination(ctx context.Context, page, pageSize int) (Page, error)
}
