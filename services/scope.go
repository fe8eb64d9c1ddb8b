package services

import (
	"fmt"

	"github.com/orthodesk/orthodesk/authz"
)

// scopeClause renders the tenant/clinic/owner predicate for the patients table aliased
// as alias, numbering placeholders from next. Child records are always filtered through
// this predicate on their parent patient, never on columns of their own.
func scopeClause(scope authz.Scope, alias string, next int) (string, []interface{}, error) {
	if scope.TenantID == "" || scope.ClinicID == "" {
		return "", nil, authz.ErrMissingClinicContext
	}

	clause := fmt.Sprintf("%[1]s.tenant_id = $%[2]d AND %[1]s.clinic_id = $%[3]d", alias, next, next+1)
	args := []interface{}{scope.TenantID, scope.ClinicID}
	if scope.OwnerRestricted() {
		clause += fmt.Sprintf(" AND %s.owner_id = $%d", alias, next+2)
		args = append(args, scope.OwnerID)
	}
	return clause, args, nil
}

// requireScope checks the permission and resolves the scope in one step
func requireScope(rc authz.RequestContext, action authz.Action, resource authz.Resource) (authz.Scope, error) {
	if !rc.Authorize(action, resource) {
		return authz.Scope{}, authz.ErrForbidden
	}
	return rc.Scope(resource)
}
