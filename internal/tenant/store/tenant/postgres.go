package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"bgv/internal/tenant/models"
	id "bgv/pkg/domain"
	"bgv/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists tenants in the tenants table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const tenantColumns = `id, name, status, created_at, updated_at`

func (s *PostgresStore) CreateIfNameAvailable(ctx context.Context, t *models.Tenant) error {
	// The unique index on lower(name) makes the check and insert one step.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.UUID(t.ID), t.Name, string(t.Status), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, uuid.UUID(tenantID))
	return scanTenant(row)
}

func (s *PostgresStore) FindByName(ctx context.Context, name string) (*models.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE lower(name) = lower($1)`, name)
	return scanTenant(row)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.TenantStatus) ([]models.Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE status = $1 ORDER BY name`, string(status))
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer rows.Close()

	var out []models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Execute locks the row FOR UPDATE, validates, mutates and writes it back in
// one transaction.
func (s *PostgresStore) Execute(ctx context.Context, tenantID id.TenantID, validate func(*models.Tenant) error, mutate func(*models.Tenant)) (*models.Tenant, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tenant tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	t, err := scanTenant(tx.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1 FOR UPDATE`, uuid.UUID(tenantID)))
	if err != nil {
		return nil, err
	}
	if err := validate(t); err != nil {
		return nil, err
	}
	mutate(t)
	if _, err := tx.ExecContext(ctx,
		`UPDATE tenants SET name = $2, status = $3, updated_at = $4 WHERE id = $1`,
		uuid.UUID(t.ID), t.Name, string(t.Status), t.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update tenant: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tenant tx: %w", err)
	}
	return t, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(row scanner) (*models.Tenant, error) {
	var (
		t      models.Tenant
		raw    uuid.UUID
		status string
	)
	if err := row.Scan(&raw, &t.Name, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	t.ID = id.TenantID(raw)
	t.Status = models.TenantStatus(status)
	return &t, nil
}
