package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLTenantRepository implements TenantRepository using SQL
type SQLTenantRepository struct {
	db *sql.DB
}

// NewSQLTenantRepository creates a new SQLTenantRepository
func NewSQLTenantRepository(db *sql.DB) *SQLTenantRepository {
	return &SQLTenantRepository{db: db}
}

var _ TenantRepository = (*SQLTenantRepository)(nil)

// Create creates a new tenant
func (r *SQLTenantRepository) Create(ctx context.Context, tenant *Tenant) error {
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, created_at)
		VALUES ($1, $2, $3)
	`, tenant.ID, tenant.Name, tenant.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// Get retrieves a tenant by ID
func (r *SQLTenantRepository) Get(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM tenants WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &t, nil
}

// Count returns the number of tenants
func (r *SQLTenantRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tenants: %w", err)
	}
	return n, nil
}

// SQLClinicRepository implements ClinicRepository using SQL
type SQLClinicRepository struct {
	db *sql.DB
}

// NewSQLClinicRepository creates a new SQLClinicRepository
func NewSQLClinicRepository(db *sql.DB) *SQLClinicRepository {
	return &SQLClinicRepository{db: db}
}

var _ ClinicRepository = (*SQLClinicRepository)(nil)

// Create creates a new clinic
func (r *SQLClinicRepository) Create(ctx context.Context, clinic *Clinic) error {
	now := time.Now()
	clinic.CreatedAt = now
	clinic.UpdatedAt = now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clinics (id, tenant_id, name, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, clinic.ID, clinic.TenantID, clinic.Name, clinic.Address, clinic.CreatedAt, clinic.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create clinic: %w", err)
	}
	return nil
}

// Get retrieves a clinic of the tenant
func (r *SQLClinicRepository) Get(ctx context.Context, tenantID, id string) (*Clinic, error) {
	var c Clinic
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, COALESCE(address, ''), created_at, updated_at
		FROM clinics
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(&c.ID, &c.TenantID, &c.Name, &c.Address, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get clinic: %w", err)
	}
	return &c, nil
}

// ListByTenant returns all clinics of a tenant
func (r *SQLClinicRepository) ListByTenant(ctx context.Context, tenantID string) ([]Clinic, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, COALESCE(address, ''), created_at, updated_at
		FROM clinics
		WHERE tenant_id = $1
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clinics: %w", err)
	}
	defer rows.Close()

	var clinics []Clinic
	for rows.Next() {
		var c Clinic
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Address, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan clinic: %w", err)
		}
		clinics = append(clinics, c)
	}
	return clinics, rows.Err()
}

// Update updates a clinic's name and address
func (r *SQLClinicRepository) Update(ctx context.Context, clinic *Clinic) error {
	clinic.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, `
		UPDATE clinics SET name = $1, address = $2, updated_at = $3
		WHERE id = $4 AND tenant_id = $5
	`, clinic.Name, clinic.Address, clinic.UpdatedAt, clinic.ID, clinic.TenantID)
	if err != nil {
		return fmt.Errorf("failed to update clinic: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
