package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/orthodesk/orthodesk/authz"
	"github.com/orthodesk/orthodesk/db"
)

// UserService manages staff accounts inside the caller's tenant
type UserService struct {
	PG   *sql.DB
	Auth *AuthService
}

func NewUserService(pg *sql.DB, auth *AuthService) *UserService {
	return &UserService{PG: pg, Auth: auth}
}

// CreateUser adds a staff member to the caller's tenant and optionally to one clinic
func (s *UserService) CreateUser(ctx context.Context, rc authz.RequestContext, req db.CreateUserRequest) (*db.User, error) {
	if !rc.Authorize(authz.ActionWrite, authz.ResourceUser) {
		return nil, authz.ErrForbidden
	}
	hash, err := s.Auth.newPasswordHash(req.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &db.User{
		ID:                 uuid.New().String(),
		TenantID:           rc.TenantID(),
		Name:               strings.TrimSpace(req.Name),
		Email:              normalizeEmail(req.Email),
		PasswordHash:       hash,
		CanTransferPatient: req.CanTransferPatient,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	tx, err := s.PG.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertUser(ctx, tx, user); err != nil {
		return nil, err
	}

	if req.ClinicID != "" {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO clinic_members (user_id, clinic_id, created_at)
			SELECT $1, c.id, $3
			FROM clinics c
			WHERE c.id = $2 AND c.tenant_id = $4
		`, user.ID, req.ClinicID, now, user.TenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to add clinic membership: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("%w: clinic %s", authz.ErrNotFound, req.ClinicID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return user, nil
}

// ListUsers lists every user of the caller's tenant
func (s *UserService) ListUsers(ctx context.Context, rc authz.RequestContext) ([]db.User, error) {
	if !rc.Authorize(authz.ActionRead, authz.ResourceUser) {
		return nil, authz.ErrForbidden
	}

	rows, err := s.PG.QueryContext(ctx, `
		SELECT id, tenant_id, name, email, is_super_admin, can_transfer_patient, is_active, created_at, updated_at
		FROM users
		WHERE tenant_id = $1
		ORDER BY name
	`, rc.TenantID())
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []db.User
	for rows.Next() {
		var u db.User
		if err := rows.Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &u.IsSuperAdmin,
			&u.CanTransferPatient, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetUser returns a user of the caller's tenant. Anyone may read their own account.
func (s *UserService) GetUser(ctx context.Context, rc authz.RequestContext, userID string) (*db.User, error) {
	if userID != rc.UserID() && !rc.Authorize(authz.ActionRead, authz.ResourceUser) {
		return nil, authz.ErrForbidden
	}

	var u db.User
	err := s.PG.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, email, is_super_admin, can_transfer_patient, is_active, created_at, updated_at
		FROM users
		WHERE id = $1 AND tenant_id = $2
	`, userID, rc.TenantID()).Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &u.IsSuperAdmin,
		&u.CanTransferPatient, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authz.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// UpdateUserFlagsRequest toggles account flags; nil fields are left alone
type UpdateUserFlagsRequest struct {
	IsActive           *bool `json:"is_active,omitempty"`
	CanTransferPatient *bool `json:"can_transfer_patient,omitempty"`
}

// UpdateUserFlags activates/deactivates a user or changes their transfer capability.
// A deactivated user fails authentication on their very next request.
// Only super-admins may change the flags of another super-admin; for anyone else such a
// target is reported as not found.
func (s *UserService) UpdateUserFlags(ctx context.Context, rc authz.RequestContext, userID string, req UpdateUserFlagsRequest) error {
	if !rc.Authorize(authz.ActionWrite, authz.ResourceUser) {
		return authz.ErrForbidden
	}
	if req.IsActive != nil && !*req.IsActive && userID == rc.UserID() {
		return fmt.Errorf("%w: you cannot deactivate yourself", authz.ErrInvalidInput)
	}
	if req.IsActive == nil && req.CanTransferPatient == nil {
		return fmt.Errorf("%w: nothing to update", authz.ErrInvalidInput)
	}

	result, err := s.PG.ExecContext(ctx, `
		UPDATE users
		SET is_active = COALESCE($1, is_active),
		    can_transfer_patient = COALESCE($2, can_transfer_patient),
		    updated_at = $3
		WHERE id = $4 AND tenant_id = $5 AND (is_super_admin = false OR $6)
	`, nullBool(req.IsActive), nullBool(req.CanTransferPatient), time.Now(), userID, rc.TenantID(),
		rc.Principal().IsSuperAdmin)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return authz.ErrNotFound
	}
	return nil
}

// ProvisionTenant lets a super-admin open a new practice group with its own super-admin
func (s *UserService) ProvisionTenant(ctx context.Context, rc authz.RequestContext, req db.RegisterRequest) (*ProvisionResult, error) {
	if !rc.Principal().IsSuperAdmin {
		return nil, authz.ErrForbidden
	}
	return s.Auth.Provision(ctx, req)
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
