// Package store keeps the campus reference tables in PostgreSQL and owns their schema.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Store wraps a PostgreSQL connection pool.
type Store struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// New creates a Store with a pgx connection pool.
func New(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &Store{db: pool, logger: logger}, nil
}

const upSuffix = ".up.sql"

// Migrate applies every *.up.sql file in migrationsDir that schema_migrations
// does not list yet, in name order, each in its own transaction.
func (s *Store) Migrate(ctx context.Context, migrationsDir string) error {
	files, err := migrationFiles(migrationsDir)
	if err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	rows, err := s.db.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}
	applied, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("scan applied migrations: %w", err)
	}

	pending := pendingMigrations(files, applied)
	for _, f := range pending {
		if err := s.applyMigration(ctx, migrationsDir, f); err != nil {
			return err
		}
	}
	s.logger.Info("Migrations up to date",
		zap.Int("applied", len(pending)),
		zap.Int("total", len(files)))
	return nil
}

func (s *Store) applyMigration(ctx context.Context, dir, file string) error {
	data, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", file, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(data)); err != nil {
		return fmt.Errorf("exec migration %s: %w", file, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, migrationVersion(file)); err != nil {
		return fmt.Errorf("record migration %s: %w", file, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", file, err)
	}
	s.logger.Info("Migration applied", zap.String("file", file))
	return nil
}

// migrationFiles lists the *.up.sql files in dir, sorted by name.
func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), upSuffix) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// migrationVersion is the file name without its .up.sql suffix.
func migrationVersion(file string) string {
	return strings.TrimSuffix(file, upSuffix)
}

// pendingMigrations keeps the files whose version is not in applied, preserving order.
func pendingMigrations(files, applied []string) []string {
	return lo.Filter(files, func(f string, _ int) bool {
		return !lo.Contains(applied, migrationVersion(f))
	})
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.db.Close()
}
