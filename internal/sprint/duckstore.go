package sprint

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/sprint-insights/backend/internal/models"
)

// StoreOptions tunes the in-memory DuckDB instance.
type StoreOptions struct {
	Threads     int
	MemoryLimit string
	TempDir     string
}

// Store holds one folder's exports in an in-memory DuckDB database.
type Store struct {
	db         *sql.DB
	categories *Categories
	logger     *zap.Logger

	mu      sync.Mutex
	loaded  bool
	closed  bool
	sprints []string
}

var schema = []string{
	`CREATE TABLE entities (
		row_ord    INTEGER NOT NULL,
		entity_id  BIGINT NOT NULL,
		status     VARCHAR,
		resolution VARCHAR,
		assignee   VARCHAR,
		estimation DOUBLE,
		spent      DOUBLE
	)`,
	`CREATE TABLE history (
		row_ord         INTEGER NOT NULL,
		entity_id       BIGINT NOT NULL,
		history_date    TIMESTAMP,
		history_version BIGINT
	)`,
	`CREATE TABLE sprints (
		sprint_ord  INTEGER NOT NULL,
		sprint_name VARCHAR NOT NULL
	)`,
	`CREATE TABLE sprint_tasks (
		sprint_ord  INTEGER NOT NULL,
		task_pos    INTEGER NOT NULL,
		sprint_name VARCHAR NOT NULL,
		task_id     BIGINT NOT NULL
	)`,
	`CREATE TABLE categories (
		kind  VARCHAR NOT NULL,
		value VARCHAR NOT NULL
	)`,
}

// NewStore opens an empty in-memory store.
func NewStore(opts StoreOptions, categories *Categories, logger *zap.Logger) (*Store, error) {
	if categories == nil {
		categories = DefaultCategories()
	}
	if opts.Threads <= 0 {
		opts.Threads = 2
	}
	if opts.MemoryLimit == "" {
		opts.MemoryLimit = "512MB"
	}

	connector, err := duckdb.NewConnector("", func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit),
			fmt.Sprintf("PRAGMA threads=%d", opts.Threads),
			"PRAGMA enable_progress_bar=false",
		}
		if opts.TempDir != "" {
			pragmas = append(pragmas, fmt.Sprintf("PRAGMA temp_directory='%s'", strings.ReplaceAll(opts.TempDir, "'", "''")))
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Store{db: db, categories: categories, logger: logger}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Load appends a dataset. A store can be loaded once.
func (s *Store) Load(ctx context.Context, d *Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("store is closed")
	}
	if s.loaded {
		return errors.New("store is already loaded")
	}

	start := time.Now()
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		return appendDataset(dConn, d, s.categories)
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	s.loaded = true
	s.sprints = d.SprintNames()
	s.logger.Debug("sprint store loaded",
		zap.Int("entities", len(d.Entities)),
		zap.Int("history", len(d.History)),
		zap.Int("sprints", len(d.Sprints)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func appendRows(conn driver.Conn, table string, rows func(a *duckdb.Appender) error) error {
	appender, err := duckdb.NewAppenderFromConn(conn, "", table)
	if err != nil {
		return fmt.Errorf("failed to create appender for %s: %w", table, err)
	}
	if err := rows(appender); err != nil {
		appender.Close()
		return fmt.Errorf("%s: %w", table, err)
	}
	return appender.Close()
}

func appendDataset(conn driver.Conn, d *Dataset, c *Categories) error {
	err := appendRows(conn, "entities", func(a *duckdb.Appender) error {
		for i, e := range d.Entities {
			if err := a.AppendRow(int32(i), e.ID, nullable(e.Status), nullable(e.Resolution),
				nullable(e.Assignee), nullable(e.Estimation), nullable(e.Spent)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = appendRows(conn, "history", func(a *duckdb.Appender) error {
		for i, h := range d.History {
			if err := a.AppendRow(int32(i), h.EntityID, nullable(h.Date), nullable(h.Version)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = appendRows(conn, "sprints", func(a *duckdb.Appender) error {
		for i, sp := range d.Sprints {
			if err := a.AppendRow(int32(i), sp.Name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = appendRows(conn, "sprint_tasks", func(a *duckdb.Appender) error {
		for i, sp := range d.Sprints {
			for pos, id := range sp.EntityIDs {
				if err := a.AppendRow(int32(i), int32(pos), sp.Name, id); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return appendRows(conn, "categories", func(a *duckdb.Appender) error {
		groups := map[string][]string{
			"todo":        c.ToDo,
			"in_progress": c.InProgress,
			"done":        c.Done,
			"excluded":    c.ExcludedResolutions,
		}
		for kind, values := range groups {
			for _, v := range values {
				if err := a.AppendRow(kind, v); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func nullable[T any](p *T) driver.Value {
	if p == nil {
		return nil
	}
	return *p
}

// The latest row per task wins. Rows are ordered the way they were merged, so
// later sprints, entity rows and history rows win ties; rows without a date
// sort after every dated row.
const sprintMetricsQuery = `
WITH merged AS (
	SELECT st.sprint_ord, st.task_pos, st.sprint_name, st.task_id,
	       e.row_ord AS e_ord, e.status, e.resolution, e.estimation,
	       h.row_ord AS h_ord, h.history_date, h.history_version
	FROM sprint_tasks st
	LEFT JOIN entities e ON e.entity_id = st.task_id
	LEFT JOIN history h ON h.entity_id = st.task_id
	%s
), latest AS (
	SELECT *, ROW_NUMBER() OVER (
		PARTITION BY task_id
		ORDER BY history_date DESC NULLS FIRST,
		         history_version DESC NULLS FIRST,
		         sprint_ord DESC, task_pos DESC, e_ord DESC NULLS FIRST, h_ord DESC NULLS FIRST
	) AS rn
	FROM merged
), tagged AS (
	SELECT sprint_name, estimation,
	       status IN (SELECT value FROM categories WHERE kind = 'todo') AS is_todo,
	       status IN (SELECT value FROM categories WHERE kind = 'in_progress') AS is_in_progress,
	       status IN (SELECT value FROM categories WHERE kind = 'done')
	           AND (resolution IS NULL OR resolution NOT IN (SELECT value FROM categories WHERE kind = 'excluded')) AS is_done
	FROM latest
	WHERE rn = 1
)
SELECT s.sprint_name,
       COALESCE(SUM(CASE WHEN t.is_todo THEN t.estimation END), 0),
       COALESCE(SUM(CASE WHEN t.is_in_progress THEN t.estimation END), 0),
       COALESCE(SUM(CASE WHEN t.is_done THEN t.estimation END), 0)
FROM sprints s
LEFT JOIN tagged t ON t.sprint_name = s.sprint_name
GROUP BY s.sprint_ord, s.sprint_name
ORDER BY s.sprint_ord`

// SprintMetrics returns To-Do, In-Progress and Done hours per sprint. When
// until is set, history after that instant is ignored and tasks without
// history within the window drop out.
func (s *Store) SprintMetrics(ctx context.Context, until *time.Time) ([]models.SprintMetric, error) {
	filter := ""
	var args []interface{}
	if until != nil {
		filter = "WHERE h.history_date <= ?"
		args = append(args, *until)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(sprintMetricsQuery, filter), args...)
	if err != nil {
		return nil, fmt.Errorf("sprint metrics query failed: %w", err)
	}
	defer rows.Close()

	metrics := make([]models.SprintMetric, 0)
	for rows.Next() {
		var m models.SprintMetric
		var todo, inProgress, done float64
		if err := rows.Scan(&m.SprintName, &todo, &inProgress, &done); err != nil {
			return nil, fmt.Errorf("failed to scan sprint metric: %w", err)
		}
		m.ToDoHours = todo / secondsPerHour
		m.InProgressHours = inProgress / secondsPerHour
		m.DoneHours = done / secondsPerHour
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// AssigneeTotals sums estimation and spent seconds per assignee over the
// tasks of sprint. An empty sprint name covers the tasks of every sprint.
func (s *Store) AssigneeTotals(ctx context.Context, sprint string) ([]AssigneeTotals, error) {
	query := `
		SELECT assignee, COALESCE(SUM(estimation), 0), COALESCE(SUM(spent), 0)
		FROM entities
		WHERE assignee IS NOT NULL
		  AND entity_id IN (SELECT task_id FROM sprint_tasks %s)
		GROUP BY assignee
		ORDER BY assignee`
	filter := ""
	var args []interface{}
	if sprint != "" {
		filter = "WHERE sprint_name = ?"
		args = append(args, sprint)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(query, filter), args...)
	if err != nil {
		return nil, fmt.Errorf("assignee query failed: %w", err)
	}
	defer rows.Close()

	var totals []AssigneeTotals
	for rows.Next() {
		var t AssigneeTotals
		if err := rows.Scan(&t.Assignee, &t.EstimationSeconds, &t.SpentSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan assignee totals: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// StatusDistribution returns the share of entities per status, most common first.
func (s *Store) StatusDistribution(ctx context.Context) ([]models.StatusShare, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) AS n
		FROM entities
		WHERE status IS NOT NULL
		GROUP BY status
		ORDER BY n DESC, status`)
	if err != nil {
		return nil, fmt.Errorf("status query failed: %w", err)
	}
	defer rows.Close()

	shares := make([]models.StatusShare, 0)
	total := 0
	for rows.Next() {
		var share models.StatusShare
		if err := rows.Scan(&share.Status, &share.Count); err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		total += share.Count
		shares = append(shares, share)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range shares {
		shares[i].Percent = math.Round(float64(shares[i].Count)/float64(total)*10000) / 100
	}
	return shares, nil
}

// Counts returns the number of entity and history rows.
func (s *Store) Counts(ctx context.Context) (entities, history int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM entities), (SELECT COUNT(*) FROM history)`).Scan(&entities, &history)
	return entities, history, err
}

// Sprints returns the loaded sprint names in export order.
func (s *Store) Sprints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sprints...)
}

// Analyze runs every query and assembles the result.
func (s *Store) Analyze(ctx context.Context, opts AnalyzeOptions) (*models.AnalysisResult, error) {
	sprints, err := s.SprintMetrics(ctx, opts.Until)
	if err != nil {
		return nil, err
	}
	totals, err := s.AssigneeTotals(ctx, opts.Sprint)
	if err != nil {
		return nil, err
	}
	statuses, err := s.StatusDistribution(ctx)
	if err != nil {
		return nil, err
	}
	entities, history, err := s.Counts(ctx)
	if err != nil {
		return nil, err
	}

	return &models.AnalysisResult{
		Sprints:      sprints,
		Assignees:    AssigneeDeviations(totals),
		Statuses:     statuses,
		EntityCount:  entities,
		HistoryCount: history,
	}, nil
}

// AnalyzeOptions narrows an analysis.
type AnalyzeOptions struct {
	// Sprint limits the assignee table to one sprint's tasks.
	Sprint string
	// Until ignores history after this instant.
	Until *time.Time
}
