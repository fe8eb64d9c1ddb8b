package authz

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLGrantManager implements GrantManager using SQL
type SQLGrantManager struct {
	db *sql.DB
}

// NewSQLGrantManager creates a new SQLGrantManager
func NewSQLGrantManager(db *sql.DB) *SQLGrantManager {
	return &SQLGrantManager{db: db}
}

// Ensure SQLGrantManager implements GrantManager
var _ GrantManager = (*SQLGrantManager)(nil)

// AssignRole upserts the grant; the (user_id, application) unique key keeps one role per app
func (m *SQLGrantManager) AssignRole(ctx context.Context, tenantID, userID string, app Application, roleID string) error {
	now := time.Now()
	result, err := m.db.ExecContext(ctx, `
		INSERT INTO user_app_access (id, user_id, application, role_id, created_at, updated_at)
		SELECT $1, u.id, $3, r.id, $5, $5
		FROM users u, roles r
		WHERE u.id = $2 AND u.tenant_id = $4 AND r.id = $6
		ON CONFLICT (user_id, application)
		DO UPDATE SET role_id = EXCLUDED.role_id, updated_at = EXCLUDED.updated_at
	`, uuid.New().String(), userID, app, tenantID, now, roleID)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: user or role", ErrNotFound)
	}
	return nil
}

// RevokeAppAccess removes the user's grant for app
func (m *SQLGrantManager) RevokeAppAccess(ctx context.Context, tenantID, userID string, app Application) error {
	result, err := m.db.ExecContext(ctx, `
		DELETE FROM user_app_access g
		USING users u
		WHERE g.user_id = u.id AND u.id = $1 AND u.tenant_id = $2 AND g.application = $3
	`, userID, tenantID, app)
	if err != nil {
		return fmt.Errorf("failed to revoke access: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: grant", ErrNotFound)
	}
	return nil
}

// ListGrants returns all grants for a user of the tenant
func (m *SQLGrantManager) ListGrants(ctx context.Context, tenantID, userID string) ([]AppAccess, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT g.id, g.user_id, g.application, g.role_id, r.name, g.created_at, g.updated_at
		FROM user_app_access g
		JOIN users u ON u.id = g.user_id
		JOIN roles r ON r.id = g.role_id
		WHERE g.user_id = $1 AND u.tenant_id = $2
		ORDER BY g.application
	`, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var grants []AppAccess
	for rows.Next() {
		var g AppAccess
		if err := rows.Scan(&g.ID, &g.UserID, &g.Application, &g.RoleID, &g.RoleName, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// SQLClinicMembershipManager implements ClinicMembershipManager using SQL
type SQLClinicMembershipManager struct {
	db *sql.DB
}

// NewSQLClinicMembershipManager creates a new SQLClinicMembershipManager
func NewSQLClinicMembershipManager(db *sql.DB) *SQLClinicMembershipManager {
	return &SQLClinicMembershipManager{db: db}
}

var _ ClinicMembershipManager = (*SQLClinicMembershipManager)(nil)

// AddMember adds the user to the clinic when both belong to tenantID
func (m *SQLClinicMembershipManager) AddMember(ctx context.Context, tenantID, clinicID, userID string) error {
	result, err := m.db.ExecContext(ctx, `
		INSERT INTO clinic_members (user_id, clinic_id, created_at)
		SELECT u.id, c.id, $4
		FROM users u, clinics c
		WHERE u.id = $1 AND c.id = $2 AND u.tenant_id = $3 AND c.tenant_id = $3
		ON CONFLICT (user_id, clinic_id) DO NOTHING
	`, userID, clinicID, tenantID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to add clinic member: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Either already a member or user/clinic outside the tenant
		isMember, err := m.IsMember(ctx, tenantID, clinicID, userID)
		if err != nil {
			return err
		}
		if !isMember {
			return fmt.Errorf("%w: user or clinic", ErrNotFound)
		}
	}
	return nil
}

// RemoveMember removes the user from the clinic
func (m *SQLClinicMembershipManager) RemoveMember(ctx context.Context, tenantID, clinicID, userID string) error {
	result, err := m.db.ExecContext(ctx, `
		DELETE FROM clinic_members m
		USING clinics c
		WHERE m.clinic_id = c.id AND m.user_id = $1 AND m.clinic_id = $2 AND c.tenant_id = $3
	`, userID, clinicID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to remove clinic member: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: membership", ErrNotFound)
	}
	return nil
}

// ListMembers returns the members of a clinic with user details
func (m *SQLClinicMembershipManager) ListMembers(ctx context.Context, tenantID, clinicID string) ([]ClinicMember, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT m.user_id, m.clinic_id, m.created_at, COALESCE(u.name, ''), COALESCE(u.email, '')
		FROM clinic_members m
		JOIN clinics c ON c.id = m.clinic_id
		JOIN users u ON u.id = m.user_id
		WHERE m.clinic_id = $1 AND c.tenant_id = $2
		ORDER BY u.name, m.created_at
	`, clinicID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clinic members: %w", err)
	}
	defer rows.Close()

	var members []ClinicMember
	for rows.Next() {
		var mem ClinicMember
		if err := rows.Scan(&mem.UserID, &mem.ClinicID, &mem.CreatedAt, &mem.Name, &mem.Email); err != nil {
			return nil, fmt.Errorf("failed to scan clinic member: %w", err)
		}
		members = append(members, mem)
	}
	return members, rows.Err()
}

// IsMember checks if a user is a member of a clinic of the tenant
func (m *SQLClinicMembershipManager) IsMember(ctx context.Context, tenantID, clinicID, userID string) (bool, error) {
	var exists bool
	err := m.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM clinic_members m
			JOIN clinics c ON c.id = m.clinic_id
			WHERE m.user_id = $1 AND m.clinic_id = $2 AND c.tenant_id = $3
		)
	`, userID, clinicID, tenantID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check clinic membership: %w", err)
	}
	return exists, nil
}
