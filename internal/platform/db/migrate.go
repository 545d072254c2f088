package db

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// migrationLockKey serialises migrations across replicas starting together.
const migrationLockKey = 7_412_003

// Migrate applies the pending .sql files of migrationsDir in name order.
func Migrate(ctx context.Context, pool *pgxpool.Pool, migrationsDir string) error {
	return MigrateFS(ctx, pool, os.DirFS(migrationsDir))
}

// MigrateFS applies each pending migration in its own transaction, holding a
// transaction-scoped advisory lock and re-checking the version under it.
func MigrateFS(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) error {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
  )`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)

	applied := 0
	for _, file := range files {
		version := strings.TrimSuffix(path.Base(file), ".sql")
		body, err := fs.ReadFile(fsys, file)
		if err != nil {
			return err
		}
		ran, err := applyOne(ctx, pool, version, string(body))
		if err != nil {
			return fmt.Errorf("migration %s: %w", version, err)
		}
		if ran {
			applied++
			zap.L().Info("migration applied", zap.String("version", version))
		}
	}
	zap.L().Debug("migrations up to date", zap.Int("files", len(files)), zap.Int("applied", applied))
	return nil
}

func applyOne(ctx context.Context, pool *pgxpool.Pool, version, body string) (bool, error) {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return false, err
	}
	var exists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)", version).Scan(&exists); err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if _, err := tx.Exec(ctx, body); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}
