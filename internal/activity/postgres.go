package activity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// supabasePoolerPort is the transaction pooler port, which rejects prepared statements.
const supabasePoolerPort = 6543

// TableName returns the prefixed activity table name.
func TableName(prefix string) string {
	return pgx.Identifier{prefix + "activity_events"}.Sanitize()
}

// poolConfig parses databaseURL and switches to describe-caching behind the pooler.
func poolConfig(databaseURL string) (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1

	if config.ConnConfig.Port == supabasePoolerPort && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
	}
	return config, nil
}

// PostgresRecorder stores events in Postgres.
type PostgresRecorder struct {
	pool   *pgxpool.Pool
	table  string
	logger *zap.Logger
}

// NewPostgresRecorder connects to databaseURL and creates the events table if needed.
func NewPostgresRecorder(ctx context.Context, databaseURL, tablePrefix string, logger *zap.Logger) (*PostgresRecorder, error) {
	config, err := poolConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRecorder{pool: pool, table: TableName(tablePrefix), logger: logger}
	if err := r.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("activity log connected", zap.String("table", r.table))
	return r, nil
}

func (r *PostgresRecorder) ensureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id         BIGSERIAL PRIMARY KEY,
			user_id    TEXT NOT NULL,
			action     TEXT NOT NULL,
			folder     TEXT NOT NULL DEFAULT '',
			detail     TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`, r.table)
	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create activity table: %w", err)
	}
	return nil
}

// Record implements Recorder.
func (r *PostgresRecorder) Record(ctx context.Context, e Event) error {
	if e.UserID == "" || e.Action == "" {
		return errors.New("activity event needs a user and an action")
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, action, folder, detail)
		VALUES ($1, $2, $3, $4)
	`, r.table)
	if _, err := r.pool.Exec(ctx, query, e.UserID, e.Action, e.Folder, e.Detail); err != nil {
		return fmt.Errorf("insert activity event: %w", err)
	}
	return nil
}

// Recent implements Recorder. Newest events come first.
func (r *PostgresRecorder) Recent(ctx context.Context, userID string, limit int) ([]Event, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, action, folder, detail, created_at
		FROM %s
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, r.table)

	rows, err := r.pool.Query(ctx, query, userID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list activity events: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
		var e Event
		err := row.Scan(&e.ID, &e.UserID, &e.Action, &e.Folder, &e.Detail, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan activity events: %w", err)
	}
	return events, nil
}

// Close implements Recorder.
func (r *PostgresRecorder) Close() {
	r.pool.Close()
}

// New returns a Postgres recorder when databaseURL is set and an in-memory
// one otherwise.
func New(ctx context.Context, databaseURL, tablePrefix string, logger *zap.Logger) (Recorder, error) {
	if databaseURL == "" {
		logger.Info("DATABASE_URL not set, keeping activity in memory")
		return NewMemoryRecorder(0), nil
	}
	return NewPostgresRecorder(ctx, databaseURL, tablePrefix, logger)
}
