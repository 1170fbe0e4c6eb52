package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Jacobbishopxy/pqx/v1/mq"
	"github.com/Jacobbishopxy/pqx/v1/perr"
)

// PostgresStore is the Store implementation backed by pgx, raw SQL (no
// ORM) — the dominant persistence driver across the retrieved corpus; see
// DESIGN.md. Mirrors the Repository-over-*pgxpool.Pool shape used
// throughout baechuer-real-time-ressys's join-service.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ mq.Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const (
	historyTable = "message_history"
	resultTable  = "message_result"
)

func (s *PostgresStore) CreateSchema(ctx context.Context) error {
	const op = "persistence.PostgresStore.CreateSchema"

	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+historyTable+` (
			id                 BIGSERIAL PRIMARY KEY,
			mailing_to         JSONB NOT NULL,
			retry              SMALLINT,
			poke               INTEGER,
			waiting_timeout    BIGINT,
			consuming_timeout  BIGINT,
			cmd                JSONB NOT NULL,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return perr.New(op, perr.Persistence, err)
	}

	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+resultTable+` (
			id          BIGSERIAL PRIMARY KEY,
			history_id  BIGINT NOT NULL REFERENCES `+historyTable+`(id),
			exit_code   INTEGER NOT NULL,
			result      TEXT,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return perr.New(op, perr.Persistence, err)
	}
	return nil
}

func (s *PostgresStore) DropSchema(ctx context.Context) error {
	const op = "persistence.PostgresStore.DropSchema"

	if _, err := s.pool.Exec(ctx, `DROP TABLE IF EXISTS `+resultTable); err != nil {
		return perr.New(op, perr.Persistence, err)
	}
	if _, err := s.pool.Exec(ctx, `DROP TABLE IF EXISTS `+historyTable); err != nil {
		return perr.New(op, perr.Persistence, err)
	}
	return nil
}

func (s *PostgresStore) SchemaExists(ctx context.Context) (bool, error) {
	const op = "persistence.PostgresStore.SchemaExists"

	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM information_schema.tables
		WHERE table_name IN ($1, $2)
	`, historyTable, resultTable).Scan(&count)
	if err != nil {
		return false, perr.New(op, perr.Persistence, err)
	}
	return count == 2, nil
}

func (s *PostgresStore) InsertHistory(ctx context.Context, cmd mq.Command) (int64, error) {
	const op = "persistence.PostgresStore.InsertHistory"

	mailingTo, err := json.Marshal(cmd.MailingTo)
	if err != nil {
		return 0, perr.New(op, perr.Persistence, err)
	}
	cmdJSON, err := cmd.MarshalJSON()
	if err != nil {
		return 0, perr.New(op, perr.Persistence, err)
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO `+historyTable+`
			(mailing_to, retry, poke, waiting_timeout, consuming_timeout, cmd)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`,
		mailingTo,
		cmd.Config.Retry,
		cmd.Config.Poke,
		cmd.Config.WaitingTimeout,
		cmd.Config.ConsumingTimeout,
		cmdJSON,
	).Scan(&id)
	if err != nil {
		return 0, perr.New(op, perr.Persistence, err)
	}
	return id, nil
}

func (s *PostgresStore) InsertResult(ctx context.Context, historyID int64, result mq.ExecutionResult) (int64, error) {
	const op = "persistence.PostgresStore.InsertResult"

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO `+resultTable+` (history_id, exit_code, result)
		VALUES ($1, $2, $3)
		RETURNING id
	`, historyID, result.ExitCode, result.Result).Scan(&id)
	if err != nil {
		return 0, perr.New(op, perr.Persistence, err)
	}
	return id, nil
}

func (s *PostgresStore) FindOne(ctx context.Context, historyID int64) (mq.MessageHistory, *mq.MessageResult, error) {
	const op = "persistence.PostgresStore.FindOne"

	h, err := s.scanHistory(ctx, `
		SELECT id, mailing_to, retry, poke, waiting_timeout, consuming_timeout, cmd, created_at
		FROM `+historyTable+` WHERE id = $1
	`, historyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mq.MessageHistory{}, nil, perr.New(op, perr.Persistence, fmt.Errorf("history %d: %w", historyID, err))
		}
		return mq.MessageHistory{}, nil, perr.New(op, perr.Persistence, err)
	}

	r, err := s.scanResult(ctx, `
		SELECT id, history_id, exit_code, result, created_at
		FROM `+resultTable+` WHERE history_id = $1
	`, historyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return h, nil, nil
		}
		return h, nil, perr.New(op, perr.Persistence, err)
	}

	return h, &r, nil
}

func (s *PostgresStore) FindMany(ctx context.Context, historyIDs []int64) ([]mq.MessageHistory, map[int64]mq.MessageResult, error) {
	const op = "persistence.PostgresStore.FindMany"

	rows, err := s.pool.Query(ctx, `
		SELECT id, mailing_to, retry, poke, waiting_timeout, consuming_timeout, cmd, created_at
		FROM `+historyTable+` WHERE id = ANY($1) ORDER BY id
	`, historyIDs)
	if err != nil {
		return nil, nil, perr.New(op, perr.Persistence, err)
	}
	defer rows.Close()

	histories, err := scanHistoryRows(rows)
	if err != nil {
		return nil, nil, perr.New(op, perr.Persistence, err)
	}

	resultRows, err := s.pool.Query(ctx, `
		SELECT id, history_id, exit_code, result, created_at
		FROM `+resultTable+` WHERE history_id = ANY($1)
	`, historyIDs)
	if err != nil {
		return nil, nil, perr.New(op, perr.Persistence, err)
	}
	defer resultRows.Close()

	results, err := scanResultRowsByHistoryID(resultRows)
	if err != nil {
		return nil, nil, perr.New(op, perr.Persistence, err)
	}

	return histories, results, nil
}

func (s *PostgresStore) FindByPagination(ctx context.Context, page, pageSize int) (mq.Page, error) {
	const op = "persistence.PostgresStore.FindByPagination"

	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.pool.Query(ctx, `
		SELECT id, mailing_to, retry, poke, waiting_timeout, consuming_timeout, cmd, created_at
		FROM `+historyTable+` ORDER BY id LIMIT $1 OFFSET $2
	`, pageSize, offset)
	if err != nil {
		return mq.Page{}, perr.New(op, perr.Persistence, err)
	}
	defer rows.Close()

	histories, err := scanHistoryRows(rows)
	if err != nil {
		return mq.Page{}, perr.New(op, perr.Persistence, err)
	}

	ids := make([]int64, len(histories))
	for i, h := range histories {
		ids[i] = h.ID
	}

	resultRows, err := s.pool.Query(ctx, `
		SELECT id, history_id, exit_code, result, created_at
		FROM `+resultTable+` WHERE history_id = ANY($1)
	`, ids)
	if err != nil {
		return mq.Page{}, perr.New(op, perr.Persistence, err)
	}
	defer resultRows.Close()

	results, err := scanResultRowsByHistoryID(resultRows)
	if err != nil {
		return mq.Page{}, perr.New(op, perr.Persistence, err)
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM `+historyTable).Scan(&total); err != nil {
		return mq.Page{}, perr.New(op, perr.Persistence, err)
	}

	return mq.Page{History: histories, Results: results, Total: total}, nil
}

func (s *PostgresStore) scanHistory(ctx context.Context, query string, args ...any) (mq.MessageHistory, error) {
	row := s.pool.QueryRow(ctx, query, args...)
	return scanHistoryRow(row)
}

func (s *PostgresStore) scanResult(ctx context.Context, query string, args ...any) (mq.MessageResult, error) {
	row := s.pool.QueryRow(ctx, query, args...)
	return scanResultRow(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistoryRow(row rowScanner) (mq.MessageHistory, error) {
	var (
		h            mq.MessageHistory
		mailingToRaw []byte
		cmdRaw       []byte
	)
	if err := row.Scan(&h.ID, &mailingToRaw, &h.Retry, &h.Poke, &h.WaitingTimeout, &h.ConsumingTimeout, &cmdRaw, &h.CreatedAt); err != nil {
		return mq.MessageHistory{}, err
	}
	if err := json.Unmarshal(mailingToRaw, &h.MailingTo); err != nil {
		return mq.MessageHistory{}, err
	}
	var cmd mq.Command
	if err := cmd.UnmarshalJSON(cmdRaw); err != nil {
		return mq.MessageHistory{}, err
	}
	h.Cmd = cmd
	return h, nil
}

func scanResultRow(row rowScanner) (mq.MessageResult, error) {
	var r mq.MessageResult
	if err := row.Scan(&r.ID, &r.HistoryID, &r.ExitCode, &r.Result, &r.CreatedAt); err != nil {
		return mq.MessageResult{}, err
	}
	return r, nil
}

type pgxRows interface {
	Next() bool
	Err() error
	Scan(dest ...any) error
}

func scanHistoryRows(rows pgxRows) ([]mq.MessageHistory, error) {
	var out []mq.MessageHistory
	for rows.Next() {
		h, err := scanHistoryRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanResultRowsByHistoryID(rows pgxRows) (map[int64]mq.MessageResult, error) {
	out := map[int64]mq.MessageResult{}
	for rows.Next() {
		r, err := scanResultRow(rows)
		if err != nil {
			return nil, err
		}
		out[r.HistoryID] = r
	}
	return out, rows.Err()
}
