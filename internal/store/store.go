package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"customer-churn-analysis/internal/churn"
)

const (
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

const opTimeout = 12 * time.Second

var validSchema = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type Config struct {
	Driver string
	URL    string
	Schema string
	Tag    string
}

// GroupSet is the grouped rates for one key, in report order.
type GroupSet struct {
	Key   string
	Rates []churn.GroupRate
}

// Run is everything persisted for one analysis.
type Run struct {
	InputFile    string
	RowsLoaded   int
	RowsAnalyzed int
	RowsDropped  int
	TotalNulls   int
	DuplicateIDs int
	ChurnRate    float64
	Groups       []GroupSet
	Correlations []churn.CorrelationPair
}

// RunSummary is one row of churn_runs.
type RunSummary struct {
	ID           string         `db:"id"`
	InputFile    string         `db:"input_file"`
	RowsLoaded   int            `db:"rows_loaded"`
	RowsAnalyzed int            `db:"rows_analyzed"`
	RowsDropped  int            `db:"rows_dropped"`
	ChurnRate    float64        `db:"churn_rate"`
	Tag          sql.NullString `db:"run_tag"`
	CreatedAt    time.Time      `db:"created_at"`
}

type Store struct {
	db     *sqlx.DB
	driver string
	schema string
	tag    string
}

func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		driver = DriverPgx
	}
	switch driver {
	case DriverPgx, DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported db driver: %s", driver)
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("database URL missing; set CHURN_DB_URL or DATABASE_URL")
	}
	schema, err := sanitizeSchema(cfg.Schema)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, driver, cfg.URL)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, driver: driver, schema: schema, tag: cfg.Tag}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func sanitizeSchema(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errors.New("db schema is required")
	}
	if !validSchema.MatchString(value) {
		return "", fmt.Errorf("invalid schema name: %s", value)
	}
	return value, nil
}

// sqlite has no schemas; tables live in the database file directly.
func (s *Store) table(name string) string {
	if s.driver == DriverSQLite {
		return name
	}
	return s.schema + "." + name
}

func (s *Store) index(name string) string {
	return s.schema + "_" + name
}

func (s *Store) timestampType() string {
	if s.driver == DriverSQLite {
		return "timestamp"
	}
	return "timestamptz"
}

// Seed stores run only when no runs exist yet. It returns an empty ID when it
// skipped.
func (s *Store) Seed(ctx context.Context, run Run) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.EnsureSchema(ctx); err != nil {
		return "", err
	}
	count, err := s.CountRuns(ctx)
	if err != nil {
		return "", err
	}
	if count > 0 {
		return "", nil
	}
	return s.saveTx(ctx, run)
}

func (s *Store) Save(ctx context.Context, run Run) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.EnsureSchema(ctx); err != nil {
		return "", err
	}
	return s.saveTx(ctx, run)
}

func (s *Store) CountRuns(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table("churn_runs")))
	return count, err
}

// Recent returns the latest runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]RunSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	runs := []RunSummary{}
	query := s.db.Rebind(fmt.Sprintf(`
		SELECT id, input_file, rows_loaded, rows_analyzed, rows_dropped, churn_rate, run_tag, created_at
		FROM %s
		ORDER BY created_at DESC, id
		LIMIT ?`, s.table("churn_runs")))
	if err := s.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, err
	}
	return runs, nil
}

// GroupRates loads the stored rates of one run and key, in stored rank order.
func (s *Store) GroupRates(ctx context.Context, runID string, key string) ([]churn.GroupRate, error) {
	rows := []struct {
		Key     string  `db:"group_value"`
		Count   int     `db:"customers"`
		Churned int     `db:"churned"`
		Rate    float64 `db:"churn_rate"`
	}{}
	query := s.db.Rebind(fmt.Sprintf(`
		SELECT group_value, customers, churned, churn_rate
		FROM %s
		WHERE run_id = ? AND group_key = ?
		ORDER BY rank`, s.table("churn_group_rates")))
	if err := s.db.SelectContext(ctx, &rows, query, runID, key); err != nil {
		return nil, err
	}
	result := make([]churn.GroupRate, 0, len(rows))
	for _, row := range rows {
		result = append(result, churn.GroupRate{Key: row.Key, Count: row.Count, Churned: row.Churned, Rate: row.Rate})
	}
	return result, nil
}

func (s *Store) saveTx(ctx context.Context, run Run) (id string, err error) {
	runID := uuid.New().String()
	// CURRENT_TIMESTAMP is whole seconds in sqlite; Recent needs finer order.
	createdAt := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, tx.Rebind(fmt.Sprintf(`
		INSERT INTO %s (
			id, input_file, rows_loaded, rows_analyzed, rows_dropped,
			total_nulls, duplicate_ids, churn_rate, run_tag, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?)`, s.table("churn_runs"))),
		runID,
		run.InputFile,
		run.RowsLoaded,
		run.RowsAnalyzed,
		run.RowsDropped,
		run.TotalNulls,
		run.DuplicateIDs,
		run.ChurnRate,
		nullString(s.tag),
		createdAt,
	)
	if err != nil {
		return "", err
	}

	insertGroupSQL := tx.Rebind(fmt.Sprintf(`
		INSERT INTO %s (
			id, run_id, group_key, group_value, rank, customers, churned, churn_rate, created_at
		) VALUES (?,?,?,?,?,?,?,?,?)`, s.table("churn_group_rates")))

	for _, set := range run.Groups {
		for rank, rate := range set.Rates {
			_, err = tx.ExecContext(ctx, insertGroupSQL,
				uuid.New().String(),
				runID,
				set.Key,
				rate.Key,
				rank,
				rate.Count,
				rate.Churned,
				rate.Rate,
				createdAt,
			)
			if err != nil {
				return "", err
			}
		}
	}

	insertCorrelationSQL := tx.Rebind(fmt.Sprintf(`
		INSERT INTO %s (
			id, run_id, x_column, y_column, coefficient, created_at
		) VALUES (?,?,?,?,?,?)`, s.table("churn_correlations")))

	for _, pair := range run.Correlations {
		_, err = tx.ExecContext(ctx, insertCorrelationSQL,
			uuid.New().String(),
			runID,
			pair.X,
			pair.Y,
			nullFloat(pair.Coefficient),
			createdAt,
		)
		if err != nil {
			return "", err
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return runID, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.driver != DriverSQLite {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, s.schema)); err != nil {
			return err
		}
	}

	statements := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id uuid PRIMARY KEY,
			input_file text NOT NULL,
			rows_loaded integer NOT NULL,
			rows_analyzed integer NOT NULL,
			rows_dropped integer NOT NULL,
			total_nulls integer NOT NULL,
			duplicate_ids integer NOT NULL,
			churn_rate numeric(6,2) NOT NULL,
			run_tag text,
			created_at %s NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, s.table("churn_runs"), s.timestampType()),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id uuid PRIMARY KEY,
			run_id uuid NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
			group_key text NOT NULL,
			group_value text NOT NULL,
			rank integer NOT NULL,
			customers integer NOT NULL,
			churned integer NOT NULL,
			churn_rate double precision NOT NULL,
			created_at %s NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, s.table("churn_group_rates"), s.table("churn_runs"), s.timestampType()),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id uuid PRIMARY KEY,
			run_id uuid NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
			x_column text NOT NULL,
			y_column text NOT NULL,
			coefficient double precision,
			created_at %s NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, s.table("churn_correlations"), s.table("churn_runs"), s.timestampType()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (run_id)`, s.index("churn_group_rates_run_idx"), s.table("churn_group_rates")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (group_key)`, s.index("churn_group_rates_key_idx"), s.table("churn_group_rates")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (run_id)`, s.index("churn_correlations_run_idx"), s.table("churn_correlations")),
	}
	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return err
		}
	}
	return nil
}

func nullString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}
