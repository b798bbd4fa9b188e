package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/searchterm-cli/internal/model"
)

// pgPool is the subset of pgxpool.Pool the store uses. Tests substitute a
// pgxmock pool.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// PostgresStore implements Store using pgxpool. Useful when the cache is
// shared between analysts rather than kept on one machine.
type PostgresStore struct {
	pool pgPool
}

// preparedStatements lists queries to prepare on each new connection for
// the hot cache paths.
var preparedStatements = map[string]string{
	"get_class": `SELECT term, category, confidence FROM classifications WHERE account = $1 AND term = ANY($2)`,
	"put_class": `INSERT INTO classifications (account, term, category, confidence, created_at, updated_at)
	              VALUES ($1, $2, $3, $4, $5, $5)
	              ON CONFLICT (account, term) DO UPDATE SET
	                category = EXCLUDED.category,
	                confidence = EXCLUDED.confidence,
	                updated_at = EXCLUDED.updated_at`,
	"insert_run":   `INSERT INTO runs (id, account, start_date, end_date, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $6)`,
	"complete_run": `UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"fail_run":     `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

func newPostgresStore(pool pgPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS classifications (
	account    TEXT NOT NULL,
	term       TEXT NOT NULL,
	category   TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (account, term)
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	account    TEXT NOT NULL,
	start_date TEXT NOT NULL,
	end_date   TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_classifications_account ON classifications(account);
CREATE INDEX IF NOT EXISTS idx_runs_account ON runs(account);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetClassifications(ctx context.Context, account string, terms []string) (map[string]CachedClass, error) {
	rows, err := s.pool.Query(ctx, "get_class", account, terms)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get classifications")
	}
	defer rows.Close()

	out := make(map[string]CachedClass, len(terms))
	for rows.Next() {
		var term string
		var cc CachedClass
		if err := rows.Scan(&term, &cc.Category, &cc.Confidence); err != nil {
			return nil, eris.Wrap(err, "postgres: scan classification")
		}
		out[term] = cc
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate classifications")
}

func (s *PostgresStore) PutClassifications(ctx context.Context, account string, entries map[string]CachedClass) error {
	if len(entries) == 0 {
		return nil
	}

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for term, cc := range entries {
		batch.Queue("put_class", account, term, cc.Category, cc.Confidence, now)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close() //nolint:errcheck

	for range entries {
		if _, err := br.Exec(); err != nil {
			return eris.Wrap(err, "postgres: upsert classification")
		}
	}
	return nil
}

func (s *PostgresStore) CacheStats(ctx context.Context, account string) (*CacheStats, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT category),
		        COALESCE(MIN(created_at)::text, ''), COALESCE(MAX(updated_at)::text, '')
		 FROM classifications WHERE account = $1`,
		account,
	)

	stats := CacheStats{Account: account}
	if err := row.Scan(&stats.Entries, &stats.Categories, &stats.OldestAt, &stats.NewestAt); err != nil {
		return nil, eris.Wrap(err, "postgres: cache stats")
	}
	return &stats, nil
}

func (s *PostgresStore) CacheDistribution(ctx context.Context, account string) ([]CategoryCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT category, COUNT(*) FROM classifications
		 WHERE account = $1 GROUP BY category ORDER BY COUNT(*) DESC, category`,
		account,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: cache distribution")
	}
	defer rows.Close()

	var dist []CategoryCount
	for rows.Next() {
		var cc CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan distribution")
		}
		dist = append(dist, cc)
	}
	return dist, eris.Wrap(rows.Err(), "postgres: iterate distribution")
}

func (s *PostgresStore) ClearCache(ctx context.Context, account string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM classifications WHERE account = $1`, account,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear cache")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, account string, startDate, endDate string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx, "insert_run",
		id, account, startDate, endDate, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Account:   account,
		StartDate: startDate,
		EndDate:   endDate,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx, "complete_run",
		string(resultJSON), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string) error {
	tag, err := s.pool.Exec(ctx, "fail_run",
		string(model.RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, account, start_date, end_date, status, result, created_at, updated_at
	          FROM runs WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Account != "" {
		query += ` AND account = ` + arg(filter.Account)
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT ` + arg(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var resultJSON []byte
		if err := rows.Scan(&r.ID, &r.Account, &r.StartDate, &r.EndDate, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(resultJSON) > 0 {
			r.Result = &model.RunResult{}
			if err := json.Unmarshal(resultJSON, r.Result); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal result")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
