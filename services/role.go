package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/orthodesk/orthodesk/authz"
	"github.com/orthodesk/orthodesk/db"
)

// RoleService manages the global role catalog.
// Reads need read:role; the catalog is shared by every tenant so only super-admins change it.
type RoleService struct {
	PG    *sql.DB
	Cache RoleCache
	Log   *logrus.Logger
}

// NewRoleService creates a RoleService. cache may be nil.
func NewRoleService(pg *sql.DB, cache RoleCache, log *logrus.Logger) *RoleService {
	if log == nil {
		log = logrus.New()
	}
	return &RoleService{PG: pg, Cache: cache, Log: log}
}

// ListRoles returns the catalog, served from the cache when possible
func (s *RoleService) ListRoles(ctx context.Context, rc authz.RequestContext) ([]authz.Role, error) {
	if !rc.Authorize(authz.ActionRead, authz.ResourceRole) {
		return nil, authz.ErrForbidden
	}

	if s.Cache != nil {
		roles, ok, err := s.Cache.GetRoles(ctx)
		if err != nil {
			s.Log.WithError(err).Warn("role cache read failed, falling back to database")
		} else if ok {
			return roles, nil
		}
	}

	roles, err := s.loadRoles(ctx, "")
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if err := s.Cache.SetRoles(ctx, roles); err != nil {
			s.Log.WithError(err).Warn("role cache write failed")
		}
	}
	return roles, nil
}

// GetRole reads one role straight from the database
func (s *RoleService) GetRole(ctx context.Context, rc authz.RequestContext, roleID string) (*authz.Role, error) {
	if !rc.Authorize(authz.ActionRead, authz.ResourceRole) {
		return nil, authz.ErrForbidden
	}
	roles, err := s.loadRoles(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, authz.ErrNotFound
	}
	return &roles[0], nil
}

// CreateRole adds a role with its permissions
func (s *RoleService) CreateRole(ctx context.Context, rc authz.RequestContext, req db.CreateRoleRequest) (*authz.Role, error) {
	if !rc.Principal().IsSuperAdmin {
		return nil, authz.ErrForbidden
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", authz.ErrInvalidInput)
	}
	perms, err := parsePermissions(req.Permissions)
	if err != nil {
		return nil, err
	}

	role := &authz.Role{
		ID:          uuid.New().String(),
		Name:        name,
		Description: req.Description,
		Permissions: perms,
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO roles (id, name, description, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
		`, role.ID, role.Name, role.Description, now)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return fmt.Errorf("%w: role %q already exists", authz.ErrInvalidInput, name)
			}
			return fmt.Errorf("failed to create role: %w", err)
		}
		return insertPermissions(ctx, tx, role.ID, perms)
	})
	if err != nil {
		return nil, err
	}

	if err := s.invalidate(ctx); err != nil {
		return nil, err
	}
	return role, nil
}

// SetRolePermissions replaces the permissions of a role
func (s *RoleService) SetRolePermissions(ctx context.Context, rc authz.RequestContext, roleID string, req db.SetRolePermissionsRequest) (*authz.Role, error) {
	if !rc.Principal().IsSuperAdmin {
		return nil, authz.ErrForbidden
	}
	perms, err := parsePermissions(req.Permissions)
	if err != nil {
		return nil, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE roles SET updated_at = $1 WHERE id = $2`, time.Now(), roleID)
		if err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return authz.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return fmt.Errorf("failed to clear role permissions: %w", err)
		}
		return insertPermissions(ctx, tx, roleID, perms)
	})
	if err != nil {
		return nil, err
	}

	if err := s.invalidate(ctx); err != nil {
		return nil, err
	}
	return s.GetRole(ctx, rc, roleID)
}

// DeleteRole removes a role that nobody holds. Built-in roles cannot be deleted.
func (s *RoleService) DeleteRole(ctx context.Context, rc authz.RequestContext, roleID string) error {
	if !rc.Principal().IsSuperAdmin {
		return authz.ErrForbidden
	}
	if db.IsSystemRole(roleID) {
		return fmt.Errorf("%w: built-in roles cannot be deleted", authz.ErrInvalidInput)
	}

	result, err := s.PG.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return fmt.Errorf("%w: role is still assigned", authz.ErrInvalidInput)
		}
		return fmt.Errorf("failed to delete role: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return authz.ErrNotFound
	}

	return s.invalidate(ctx)
}

// invalidate drops the cached catalog before the mutation is reported as done.
// A failure is returned so the caller never reports success over a stale cache.
func (s *RoleService) invalidate(ctx context.Context) error {
	if s.Cache == nil {
		return nil
	}
	if err := s.Cache.Invalidate(ctx); err != nil {
		s.Log.WithError(err).Error("failed to invalidate role cache")
		return fmt.Errorf("role catalog changed but its cache could not be invalidated: %w", err)
	}
	return nil
}

// loadRoles reads roles and their permissions; roleID == "" loads the whole catalog
func (s *RoleService) loadRoles(ctx context.Context, roleID string) ([]authz.Role, error) {
	rows, err := s.PG.QueryContext(ctx, `
		SELECT r.id, r.name, COALESCE(r.description, ''),
			COALESCE(rp.action, ''), COALESCE(rp.resource, ''), COALESCE(rp.application, '')
		FROM roles r
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		WHERE ($1 = '' OR r.id::text = $1)
		ORDER BY r.name, rp.action, rp.resource
	`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []authz.Role
	index := map[string]int{}
	for rows.Next() {
		var (
			id, name, description   string
			action, resource, appID string
		)
		if err := rows.Scan(&id, &name, &description, &action, &resource, &appID); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		i, ok := index[id]
		if !ok {
			roles = append(roles, authz.Role{ID: id, Name: name, Description: description, Permissions: []authz.Permission{}})
			i = len(roles) - 1
			index[id] = i
		}
		if action != "" {
			roles[i].Permissions = append(roles[i].Permissions, authz.Permission{
				Action:      authz.Action(action),
				Resource:    authz.Resource(resource),
				Application: authz.Application(appID),
			})
		}
	}
	return roles, rows.Err()
}

func (s *RoleService) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.PG.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func parsePermissions(in []db.PermissionInput) ([]authz.Permission, error) {
	perms := make([]authz.Permission, 0, len(in))
	seen := map[authz.Permission]bool{}
	for _, p := range in {
		perm := authz.Permission{
			Action:      authz.Action(p.Action),
			Resource:    authz.Resource(p.Resource),
			Application: authz.Application(p.Application),
		}
		if !perm.Action.Valid() {
			return nil, fmt.Errorf("%w: unknown action %q", authz.ErrInvalidInput, p.Action)
		}
		if !perm.Resource.Valid() {
			return nil, fmt.Errorf("%w: unknown resource %q", authz.ErrInvalidInput, p.Resource)
		}
		if perm.Application != "" && !perm.Application.Valid() {
			return nil, fmt.Errorf("%w: unknown application %q", authz.ErrInvalidInput, p.Application)
		}
		if seen[perm] {
			continue
		}
		seen[perm] = true
		perms = append(perms, perm)
	}
	return perms, nil
}

func insertPermissions(ctx context.Context, tx *sql.Tx, roleID string, perms []authz.Permission) error {
	for _, p := range perms {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO role_permissions (role_id, action, resource, application)
			VALUES ($1, $2, $3, $4)
		`, roleID, string(p.Action), string(p.Resource), string(p.Application))
		if err != nil {
			return fmt.Errorf("failed to add permission %s: %w", p, err)
		}
	}
	return nil
}
