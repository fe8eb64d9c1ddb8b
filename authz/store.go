package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLPrincipalStore implements PrincipalStore using direct SQL queries.
// Nothing is cached: every call reads the current grants so a revocation takes effect
// on the next request.
type SQLPrincipalStore struct {
	db *sql.DB
}

// NewSQLPrincipalStore creates a new SQLPrincipalStore with the given database connection
func NewSQLPrincipalStore(db *sql.DB) *SQLPrincipalStore {
	return &SQLPrincipalStore{db: db}
}

// Ensure SQLPrincipalStore implements PrincipalStore interface
var _ PrincipalStore = (*SQLPrincipalStore)(nil)

// LoadPrincipal loads the user, every grant with its role and permissions, and the
// clinics the user may select. Super-admins are given every clinic of their tenant.
func (s *SQLPrincipalStore) LoadPrincipal(ctx context.Context, userID string) (*Principal, error) {
	var p Principal
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, is_super_admin, can_transfer_patient
		FROM users
		WHERE id = $1 AND is_active = true
	`, userID).Scan(&p.ID, &p.TenantID, &p.Email, &p.IsSuperAdmin, &p.CanTransferPatient)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	grants, err := s.loadGrants(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Grants = grants

	clinics, err := s.loadClinics(ctx, &p)
	if err != nil {
		return nil, err
	}
	p.Clinics = clinics

	return &p, nil
}

// loadGrants fetches grants, roles and permissions as one flat join and folds the rows
func (s *SQLPrincipalStore) loadGrants(ctx context.Context, userID string) ([]Grant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.application, r.id, r.name,
			COALESCE(rp.action, ''), COALESCE(rp.resource, ''), COALESCE(rp.application, '')
		FROM user_app_access g
		JOIN roles r ON r.id = g.role_id
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		WHERE g.user_id = $1
		ORDER BY g.application, rp.action, rp.resource
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load grants: %w", err)
	}
	defer rows.Close()

	var grants []Grant
	index := make(map[Application]int)
	for rows.Next() {
		var (
			app                    Application
			roleID, roleName       string
			action, resource, pApp string
		)
		if err := rows.Scan(&app, &roleID, &roleName, &action, &resource, &pApp); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}

		i, ok := index[app]
		if !ok {
			grants = append(grants, Grant{
				ApplicationName: app,
				Role:            &Role{ID: roleID, Name: roleName},
			})
			i = len(grants) - 1
			index[app] = i
		}
		if action != "" && resource != "" {
			role := grants[i].Role
			role.Permissions = append(role.Permissions, Permission{
				Action:      Action(action),
				Resource:    Resource(resource),
				Application: Application(pApp),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read grants: %w", err)
	}
	return grants, nil
}

func (s *SQLPrincipalStore) loadClinics(ctx context.Context, p *Principal) ([]ClinicMembership, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if p.IsSuperAdmin {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, tenant_id FROM clinics
			WHERE tenant_id = $1
			ORDER BY id
		`, p.TenantID)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT c.id, c.tenant_id
			FROM clinic_members m
			JOIN clinics c ON c.id = m.clinic_id
			WHERE m.user_id = $1 AND c.tenant_id = $2
			ORDER BY c.id
		`, p.ID, p.TenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load clinics: %w", err)
	}
	defer rows.Close()

	var clinics []ClinicMembership
	for rows.Next() {
		var m ClinicMembership
		if err := rows.Scan(&m.ClinicID, &m.TenantID); err != nil {
			return nil, fmt.Errorf("failed to scan clinic: %w", err)
		}
		clinics = append(clinics, m)
	}
	return clinics, rows.Err()
}
