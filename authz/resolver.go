package authz

// Authorize reports whether the principal may perform action on resource.
//
// Super-admins are always allowed. Everyone else is allowed when any permission of any
// grant matches, whichever application the grant was issued for: a role granted for the
// portal also satisfies checks made inside the planner.
func Authorize(p *Principal, action Action, resource Resource) bool {
	if p == nil {
		return false
	}
	if p.IsSuperAdmin {
		return true
	}
	for _, g := range p.Grants {
		if g.Role == nil {
			continue
		}
		for _, perm := range g.Role.Permissions {
			if perm.Matches(action, resource) {
				return true
			}
		}
	}
	return false
}

// HasAppAccess reports whether the principal holds any grant for the application
func HasAppAccess(p *Principal, app Application) bool {
	if p == nil {
		return false
	}
	if p.IsSuperAdmin {
		return true
	}
	for _, g := range p.Grants {
		if g.ApplicationName == app {
			return true
		}
	}
	return false
}

// Scope is the tenant/clinic/owner predicate a query must apply.
// OwnerID is empty when the principal may see every record of the clinic.
type Scope struct {
	TenantID string `json:"tenant_id"`
	ClinicID string `json:"clinic_id"`
	OwnerID  string `json:"owner_id,omitempty"`
}

// OwnerRestricted reports whether the scope limits results to the principal's own records
func (s Scope) OwnerRestricted() bool {
	return s.OwnerID != ""
}

// Allows reports whether a record with the given placement falls inside the scope
func (s Scope) Allows(tenantID, clinicID, ownerID string) bool {
	if s.TenantID == "" || s.ClinicID == "" {
		return false
	}
	if tenantID != s.TenantID || clinicID != s.ClinicID {
		return false
	}
	return s.OwnerID == "" || ownerID == s.OwnerID
}

// ScopeFilter computes the scope for resource inside the active clinic.
//
// The active clinic is only a selection: it must be one of the principal's clinics in
// the principal's own tenant (super-admins are members of every clinic of their tenant).
func ScopeFilter(p *Principal, activeClinicID string, resource Resource) (Scope, error) {
	if p == nil {
		return Scope{}, ErrUnauthenticated
	}
	if activeClinicID == "" {
		return Scope{}, ErrMissingClinicContext
	}
	if !p.IsMemberOf(activeClinicID) {
		return Scope{}, ErrForbidden
	}

	scope := Scope{TenantID: p.TenantID, ClinicID: activeClinicID}
	if p.IsSuperAdmin || Authorize(p, ActionManage, resource) {
		return scope, nil
	}
	scope.OwnerID = p.ID
	return scope, nil
}
