package authz

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AdminService handles clinic and access administration for the portal.
// It combines authorization, memberships, grants and the clinic repository.
type AdminService struct {
	clinics ClinicRepository
	members ClinicMembershipManager
	grants  GrantManager
}

// NewAdminService creates a new admin service
func NewAdminService(clinics ClinicRepository, members ClinicMembershipManager, grants GrantManager) *AdminService {
	return &AdminService{
		clinics: clinics,
		members: members,
		grants:  grants,
	}
}

// CreateClinicInput represents input for creating a clinic
type CreateClinicInput struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// CreateClinic creates a clinic in the caller's tenant and makes the caller a member
func (s *AdminService) CreateClinic(ctx context.Context, rc RequestContext, input CreateClinicInput) (*Clinic, error) {
	if !rc.Authorize(ActionWrite, ResourceClinic) {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	clinic := &Clinic{
		ID:       uuid.New().String(),
		TenantID: rc.TenantID(),
		Name:     strings.TrimSpace(input.Name),
		Address:  input.Address,
	}
	if err := s.clinics.Create(ctx, clinic); err != nil {
		return nil, err
	}

	if !rc.Principal().IsSuperAdmin {
		if err := s.members.AddMember(ctx, rc.TenantID(), clinic.ID, rc.UserID()); err != nil {
			return nil, fmt.Errorf("failed to add creator membership: %w", err)
		}
	}
	return clinic, nil
}

// ListClinics returns the clinics the caller may select as active
func (s *AdminService) ListClinics(ctx context.Context, rc RequestContext) ([]Clinic, error) {
	all, err := s.clinics.ListByTenant(ctx, rc.TenantID())
	if err != nil {
		return nil, err
	}

	p := rc.Principal()
	if p.IsSuperAdmin {
		return all, nil
	}
	visible := make([]Clinic, 0, len(all))
	for _, c := range all {
		if p.IsMemberOf(c.ID) {
			visible = append(visible, c)
		}
	}
	return visible, nil
}

// AddClinicMember adds a user of the caller's tenant to a clinic
func (s *AdminService) AddClinicMember(ctx context.Context, rc RequestContext, clinicID, userID string) error {
	if !rc.Authorize(ActionWrite, ResourceClinic) {
		return ErrForbidden
	}
	if clinicID == "" || userID == "" {
		return ErrInvalidInput
	}
	return s.members.AddMember(ctx, rc.TenantID(), clinicID, userID)
}

// RemoveClinicMember removes a user from a clinic
func (s *AdminService) RemoveClinicMember(ctx context.Context, rc RequestContext, clinicID, userID string) error {
	if !rc.Authorize(ActionWrite, ResourceClinic) {
		return ErrForbidden
	}
	return s.members.RemoveMember(ctx, rc.TenantID(), clinicID, userID)
}

// ListClinicMembers lists the members of a clinic the caller can select
func (s *AdminService) ListClinicMembers(ctx context.Context, rc RequestContext, clinicID string) ([]ClinicMember, error) {
	if !rc.Authorize(ActionRead, ResourceClinic) {
		return nil, ErrForbidden
	}
	if !rc.Principal().IsMemberOf(clinicID) {
		return nil, ErrForbidden
	}
	return s.members.ListMembers(ctx, rc.TenantID(), clinicID)
}

// AssignRoleInput represents input for granting application access
type AssignRoleInput struct {
	Application Application `json:"application"`
	RoleID      string      `json:"role_id" binding:"omitempty,uuid"`
}

// AssignRole grants userID the role for an application, replacing any previous role
func (s *AdminService) AssignRole(ctx context.Context, rc RequestContext, userID string, input AssignRoleInput) error {
	if !rc.Authorize(ActionWrite, ResourceRole) {
		return ErrForbidden
	}
	if !input.Application.Valid() {
		return fmt.Errorf("%w: unknown application %q", ErrInvalidInput, input.Application)
	}
	if userID == "" || input.RoleID == "" {
		return ErrInvalidInput
	}
	return s.grants.AssignRole(ctx, rc.TenantID(), userID, input.Application, input.RoleID)
}

// RevokeAppAccess deletes userID's grant for app
func (s *AdminService) RevokeAppAccess(ctx context.Context, rc RequestContext, userID string, app Application) error {
	if !rc.Authorize(ActionWrite, ResourceRole) {
		return ErrForbidden
	}
	return s.grants.RevokeAppAccess(ctx, rc.TenantID(), userID, app)
}

// ListGrants lists a user's grants
func (s *AdminService) ListGrants(ctx context.Context, rc RequestContext, userID string) ([]AppAccess, error) {
	if !rc.Authorize(ActionRead, ResourceRole) && userID != rc.UserID() {
		return nil, ErrForbidden
	}
	return s.grants.ListGrants(ctx, rc.TenantID(), userID)
}
