// Package postgres stores emergency rows in PostgreSQL (including Supabase).
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"ai-voice-bridge-service/internal/observability/logging"
	"ai-voice-bridge-service/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Config holds the PostgreSQL connection settings.
type Config struct {
	URL         string
	Table       string
	AutoMigrate bool
	Timeout     time.Duration
}

// Store is a pgxpool-backed storage.Store.
type Store struct {
	pool    *pgxpool.Pool
	table   string
	timeout time.Duration
	logger  zerolog.Logger
}

var _ storage.Store = (*Store)(nil)

// columns maps row keys to their SQL placeholder cast.
var columns = map[string]string{
	"location":       "",
	"emergency":      "",
	"mobile_no":      "",
	"model_response": "::jsonb",
}

// DefaultTable is the table created by the embedded migrations.
const DefaultTable = "emergencies"

// defaultTimeout bounds startup probes when Config.Timeout is unset.
const defaultTimeout = 5 * time.Second

// Open builds the pool and, when the database answers, applies migrations.
// An unreachable database is logged, not returned: the pool dials again on
// the next insert.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("postgres: empty database url")
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}

	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	s := &Store{
		pool:    pool,
		table:   cfg.Table,
		timeout: cfg.Timeout,
		logger:  logging.WithComponent("storage.postgres"),
	}

	probeCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := pool.Ping(probeCtx); err != nil {
		s.logger.Warn().
			Err(err).
			Str("table", cfg.Table).
			Msg("PostgreSQL not reachable, migrations skipped")
		return s, nil
	}

	if migrate, reason := shouldMigrate(cfg); migrate {
		if err := s.migrate(probeCtx); err != nil {
			s.logger.Warn().Err(err).Msg("PostgreSQL migrations failed")
		}
	} else if reason != "" {
		s.logger.Warn().Str("table", cfg.Table).Msg(reason)
	}

	s.logger.Info().
		Str("table", cfg.Table).
		Bool("autoMigrate", cfg.AutoMigrate).
		Msg("PostgreSQL store ready")
	return s, nil
}

// shouldMigrate reports whether the embedded migrations apply to cfg. They
// only create DefaultTable, so a custom table must be provisioned outside.
func shouldMigrate(cfg Config) (bool, string) {
	if !cfg.AutoMigrate {
		return false, ""
	}
	if cfg.Table != DefaultTable {
		return false, "Custom table name, migrations skipped; provision the table manually"
	}
	return true, ""
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	d := s.timeout
	if d <= 0 {
		d = defaultTimeout
	}
	return context.WithTimeout(ctx, d)
}

func (s *Store) migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("postgres: goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// Insert writes one row.
func (s *Store) Insert(ctx context.Context, row map[string]any) error {
	query, args, err := buildInsert(s.table, row)
	if err != nil {
		return err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: insert into %s: %w", s.table, err)
	}
	return nil
}

// Health pings the pool and probes the table.
func (s *Store) Health(ctx context.Context) storage.Health {
	h := storage.Health{Table: s.table, Driver: "postgres"}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.pool.Ping(ctx); err != nil {
		h.Error = err.Error()
		return h
	}
	probe := "SELECT 1 FROM " + pgx.Identifier{s.table}.Sanitize() + " LIMIT 1"
	rows, err := s.pool.Query(ctx, probe)
	if err != nil {
		h.Error = err.Error()
		return h
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		h.Error = err.Error()
		return h
	}
	h.OK = true
	return h
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// buildInsert renders a parameterized INSERT for the row's keys in sorted
// order. Unknown keys are rejected.
func buildInsert(table string, row map[string]any) (string, []any, error) {
	if len(row) == 0 {
		return "", nil, fmt.Errorf("postgres: empty row")
	}
	keys := make([]string, 0, len(row))
	for k := range row {
		if _, ok := columns[k]; !ok {
			return "", nil, fmt.Errorf("postgres: unknown column %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cols := make([]string, len(keys))
	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		cols[i] = pgx.Identifier{k}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d%s", i+1, columns[k])
		v := row[k]
		if columns[k] == "::jsonb" {
			b, err := json.Marshal(v)
			if err != nil {
				return "", nil, fmt.Errorf("postgres: encode %s: %w", k, err)
			}
			v = string(b)
		}
		args[i] = v
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{table}.Sanitize(),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "))
	return query, args, nil
}
