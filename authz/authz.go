// Package authz provides the access-control model shared by the portal and planner apps.
// This package follows Clean Architecture with separated concerns:
// - Resolver: pure permission and scope decisions (no I/O)
// - ContextBuilder: authenticates a request and loads its principal
// - Stores: SQL access to principals, grants and clinic memberships
package authz

import (
	"errors"
)

// Action represents an operation that can be performed on a resource
type Action string

const (
	ActionRead     Action = "read"
	ActionWrite    Action = "write"
	ActionDelete   Action = "delete"
	ActionTransfer Action = "transfer"
	ActionManage   Action = "manage" // Wildcard: matches any action
)

// Resource represents the type of record being accessed
type Resource string

const (
	ResourcePatient   Resource = "patient"
	ResourcePlanning  Resource = "planning"
	ResourceContract  Resource = "contract"
	ResourceTreatment Resource = "treatment"
	ResourceClinic    Resource = "clinic"
	ResourceUser      Resource = "user"
	ResourceRole      Resource = "role"
	ResourceAll       Resource = "all" // Wildcard: matches any resource
)

// Application names a product surface a user can be granted access to
type Application string

const (
	AppPortal  Application = "portal"
	AppPlanner Application = "planner"
)

func (a Action) Valid() bool {
	switch a {
	case ActionRead, ActionWrite, ActionDelete, ActionTransfer, ActionManage:
		return true
	}
	return false
}

func (r Resource) Valid() bool {
	switch r {
	case ResourcePatient, ResourcePlanning, ResourceContract, ResourceTreatment,
		ResourceClinic, ResourceUser, ResourceRole, ResourceAll:
		return true
	}
	return false
}

func (a Application) Valid() bool {
	return a == AppPortal || a == AppPlanner
}

// Common errors
var (
	ErrUnauthenticated      = errors.New("unauthenticated: missing or invalid credential")
	ErrPrincipalNotFound    = errors.New("principal not found")
	ErrForbidden            = errors.New("forbidden: you don't have permission to perform this action")
	ErrMissingClinicContext = errors.New("no active clinic selected")
	ErrNotFound             = errors.New("resource not found")
	ErrInvalidInput         = errors.New("invalid input")
)

// Permission is an (action, resource) capability. Application is informational only:
// matching ignores it.
type Permission struct {
	Action      Action      `json:"action"`
	Resource    Resource    `json:"resource"`
	Application Application `json:"application,omitempty"`
}

// Matches reports whether p grants action on resource, honoring the manage/all wildcards
func (p Permission) Matches(action Action, resource Resource) bool {
	return (p.Action == action || p.Action == ActionManage) &&
		(p.Resource == resource || p.Resource == ResourceAll)
}

func (p Permission) String() string {
	return string(p.Action) + ":" + string(p.Resource)
}

// Role is a named, tenant-independent set of permissions
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions"`
}

// Grant binds a user to one application with exactly one role
type Grant struct {
	ApplicationName Application `json:"application"`
	Role            *Role       `json:"role"`
}

// ClinicMembership places a principal in a clinic of a tenant
type ClinicMembership struct {
	ClinicID string `json:"clinic_id"`
	TenantID string `json:"tenant_id"`
}

// Principal is the authenticated user with everything needed to authorize a request.
// It is loaded once per request and never mutated afterwards.
type Principal struct {
	ID                 string             `json:"id"`
	TenantID           string             `json:"tenant_id"`
	Email              string             `json:"email"`
	IsSuperAdmin       bool               `json:"is_super_admin"`
	CanTransferPatient bool               `json:"can_transfer_patient"`
	Grants             []Grant            `json:"grants"`
	Clinics            []ClinicMembership `json:"clinics"`
}

// IsMemberOf reports whether the principal belongs to clinicID within its own tenant
func (p *Principal) IsMemberOf(clinicID string) bool {
	if p == nil || clinicID == "" {
		return false
	}
	for _, m := range p.Clinics {
		if m.ClinicID == clinicID && m.TenantID == p.TenantID {
			return true
		}
	}
	return false
}

func (p *Principal) clone() *Principal {
	c := *p
	if p.Grants != nil {
		c.Grants = make([]Grant, len(p.Grants))
		for i, g := range p.Grants {
			c.Grants[i] = Grant{ApplicationName: g.ApplicationName}
			if g.Role != nil {
				role := *g.Role
				role.Permissions = append([]Permission(nil), g.Role.Permissions...)
				c.Grants[i].Role = &role
			}
		}
	}
	if p.Clinics != nil {
		c.Clinics = append([]ClinicMembership(nil), p.Clinics...)
	}
	return &c
}
