package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orthodesk/orthodesk/authz"
)

func TestScopeClause(t *testing.T) {
	clause, args, err := scopeClause(authz.Scope{TenantID: "t", ClinicID: "c", OwnerID: "u"}, "p", 3)
	require.NoError(t, err)
	assert.Equal(t, "p.tenant_id = $3 AND p.clinic_id = $4 AND p.owner_id = $5", clause)
	assert.Equal(t, []interface{}{"t", "c", "u"}, args)

	clause, args, err = scopeClause(authz.Scope{TenantID: "t", ClinicID: "c"}, "p", 1)
	require.NoError(t, err)
	assert.Equal(t, "p.tenant_id = $1 AND p.clinic_id = $2", clause)
	assert.Equal(t, []interface{}{"t", "c"}, args)

	_, _, err = scopeClause(authz.Scope{TenantID: "t"}, "p", 1)
	assert.ErrorIs(t, err, authz.ErrMissingClinicContext)
}

func TestRequireScope(t *testing.T) {
	reader := staff("user-p", grant(authz.AppPlanner, can(authz.ActionRead, authz.ResourcePatient)))

	// Permission is checked before the clinic is looked at
	_, err := requireScope(rcOf(reader, ""), authz.ActionWrite, authz.ResourcePatient)
	assert.ErrorIs(t, err, authz.ErrForbidden)

	_, err = requireScope(rcOf(reader, ""), authz.ActionRead, authz.ResourcePatient)
	assert.ErrorIs(t, err, authz.ErrMissingClinicContext)

	scope, err := requireScope(rcOf(reader, "clinic-b"), authz.ActionRead, authz.ResourcePatient)
	require.NoError(t, err)
	assert.Equal(t, authz.Scope{TenantID: "tenant-1", ClinicID: "clinic-b", OwnerID: "user-p"}, scope)
}
