package authz

import (
	"context"
	"time"
)

// AppAccess is a stored grant: which role a user holds for an application
type AppAccess struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Application Application `json:"application"`
	RoleID      string      `json:"role_id"`
	RoleName    string      `json:"role_name"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ClinicMember is a user's membership in a clinic
type ClinicMember struct {
	UserID    string    `json:"user_id"`
	ClinicID  string    `json:"clinic_id"`
	CreatedAt time.Time `json:"created_at"`
	// User details (populated when listing clinic members)
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// GrantManager manages the (user, application) -> role bindings.
// Changes are visible to the very next LoadPrincipal call.
type GrantManager interface {
	// AssignRole sets the user's single role for an application, replacing any previous one
	AssignRole(ctx context.Context, tenantID, userID string, app Application, roleID string) error

	// RevokeAppAccess removes the user's grant for an application
	RevokeAppAccess(ctx context.Context, tenantID, userID string, app Application) error

	// ListGrants returns all grants held by a user
	ListGrants(ctx context.Context, tenantID, userID string) ([]AppAccess, error)
}

// ClinicMembershipManager manages which clinics a user belongs to.
// Every call is bounded to one tenant: users and clinics of other tenants are not found.
type ClinicMembershipManager interface {
	AddMember(ctx context.Context, tenantID, clinicID, userID string) error
	RemoveMember(ctx context.Context, tenantID, clinicID, userID string) error
	ListMembers(ctx context.Context, tenantID, clinicID string) ([]ClinicMember, error)
	IsMember(ctx context.Context, tenantID, clinicID, userID string) (bool, error)
}
