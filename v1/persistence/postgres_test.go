//go:build integration

package persistence_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jacobbishopxy/pqx/v1/ec"
	"github.com/Jacobbishopxy/pqx/v1/mq"
	"github.com/Jacobbishopxy/pqx/v1/persistence"
)

func setupStore(t *testing.T) *persistence.PostgresStore {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("skipping integration test: TEST_DB_DSN not set")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := persistence.NewPostgresStore(pool)
	require.NoError(t, store.DropSchema(context.Background()))
	require.NoError(t, store.CreateSchema(context.Background()))
	return store
}

func TestInsertHistoryThenResultLinkByID(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	cmd := mq.Command{
		MailingTo: nil,
		Cmd:       ec.Ping{Addr: "127.0.0.1"},
	}

	historyID, err := store.InsertHistory(ctx, cmd)
	require.NoError(t, err)
	assert.NotZero(t, historyID)

	result := mq.ExecutionResult{ExitCode: 0}
	resultID, err := store.InsertResult(ctx, historyID, result)
	require.NoError(t, err)
	assert.NotZero(t, resultID)

	history, res, err := store.FindOne(ctx, historyID)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, historyID, history.ID)
	assert.Equal(t, historyID, res.HistoryID)
	assert.Equal(t, int32(0), res.ExitCode)
}

func TestFindByPaginationOrdersByID(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.InsertHistory(ctx, mq.Command{Cmd: ec.Bash{Argv: []string{"true"}}})
		require.NoError(t, err)
	}

	page, err := store.FindByPagination(ctx, 1, 2)
	require.NoError(t, err)
	assert.Len(t, page.History, 2)
	assert.EqualValues(t, 3, page.Total)
	assert.Less(t, page.History[0].ID, page.History[1].ID)
}
