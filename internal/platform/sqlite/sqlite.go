// Package sqlite is an embedded single-file store used by the development
// driver and by tests. It implements the same store interfaces as the
// Postgres stores.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

const (
	dateLayout = "2006-01-02"
	// tsLayout is fixed width so timestamps sort lexically.
	tsLayout = "2006-01-02T15:04:05.000000000Z"
)

type Store struct {
	DB  *sqlx.DB
	Now func() time.Time
}

// Open connects to path (":memory:" for a private in-memory database) and
// applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	var dsn string
	if path == ":memory:" {
		// Each in-memory store gets its own named database.
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	} else {
		dsn = fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", path)
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// One connection serialises writers and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *sqlx.DB) *Store {
	return &Store{DB: db, Now: time.Now}
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";\n") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *Store) now() string {
	return formatTS(s.Now())
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(tsLayout, raw)
}

func parseNullTS(raw sql.NullString) (*time.Time, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	t, err := parseTS(raw.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func rollback(tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		zap.L().Warn("sqlite tx rollback failed", zap.Error(err))
	}
}

// EnsureTenant returns the id of the named tenant, creating it if needed.
func (s *Store) EnsureTenant(ctx context.Context, name string) (string, error) {
	var id string
	err := s.DB.GetContext(ctx, &id, `SELECT id FROM tenants WHERE name = ?`, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	id = uuid.NewString()
	if _, err := s.DB.ExecContext(ctx, `INSERT INTO tenants (id, name, created_at) VALUES (?,?,?)`, id, name, s.now()); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.DB.SelectContext(ctx, &ids, `SELECT id FROM tenants ORDER BY created_at`)
	return ids, err
}
