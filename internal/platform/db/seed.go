package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"neon/internal/domain/leave"
	"neon/internal/platform/config"
)

// Seed makes sure the configured tenant exists and carries the default leave
// catalog. Existing catalog entries are left untouched.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) (string, error) {
	name := strings.TrimSpace(cfg.SeedTenantName)
	if name == "" {
		return "", errors.New("seed tenant name is empty")
	}
	tenantID, err := ensureTenant(ctx, pool, name)
	if err != nil {
		return "", err
	}
	if err := leave.NewStore(pool).EnsureTypes(ctx, tenantID, leave.DefaultCatalog()); err != nil {
		return "", err
	}
	zap.L().Info("seed complete", zap.String("tenant_id", tenantID), zap.String("tenant", name))
	return tenantID, nil
}

func ensureTenant(ctx context.Context, pool *pgxpool.Pool, name string) (string, error) {
	var id string
	err := pool.QueryRow(ctx, "SELECT id::text FROM tenants WHERE name = $1", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}
	if err := pool.QueryRow(ctx, "INSERT INTO tenants (name) VALUES ($1) RETURNING id::text", name).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}
