package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	allActions   = []Action{ActionRead, ActionWrite, ActionDelete, ActionTransfer, ActionManage}
	allResources = []Resource{ResourcePatient, ResourcePlanning, ResourceContract, ResourceTreatment, ResourceClinic, ResourceUser, ResourceRole, ResourceAll}
)

func role(name string, perms ...Permission) *Role {
	return &Role{ID: "role-" + name, Name: name, Permissions: perms}
}

func perm(action Action, resource Resource) Permission {
	return Permission{Action: action, Resource: resource}
}

// dentist builds a non-admin principal of tenant-1 who is a member of the given clinics
func dentist(id string, grants []Grant, clinics ...string) *Principal {
	p := &Principal{ID: id, TenantID: "tenant-1", Grants: grants}
	for _, c := range clinics {
		p.Clinics = append(p.Clinics, ClinicMembership{ClinicID: c, TenantID: "tenant-1"})
	}
	return p
}

func superAdmin(id string, clinics ...string) *Principal {
	p := dentist(id, nil, clinics...)
	p.IsSuperAdmin = true
	return p
}

func TestAuthorize_SuperAdminAlwaysAllowed(t *testing.T) {
	p := superAdmin("admin-1")
	for _, a := range allActions {
		for _, r := range allResources {
			assert.True(t, Authorize(p, a, r), "super-admin denied %s on %s", a, r)
		}
	}
}

func TestAuthorize_NoGrantsNeverAllowed(t *testing.T) {
	p := dentist("user-1", nil, "clinic-a")
	for _, a := range allActions {
		for _, r := range allResources {
			assert.False(t, Authorize(p, a, r), "principal without grants allowed %s on %s", a, r)
		}
	}
}

func TestAuthorize_WritePatient(t *testing.T) {
	tests := []struct {
		name string
		perm Permission
		want bool
	}{
		{"write patient", perm(ActionWrite, ResourcePatient), true},
		{"manage patient", perm(ActionManage, ResourcePatient), true},
		{"write all", perm(ActionWrite, ResourceAll), true},
		{"manage all", perm(ActionManage, ResourceAll), true},
		{"read patient", perm(ActionRead, ResourcePatient), false},
		{"write contract", perm(ActionWrite, ResourceContract), false},
		{"delete all", perm(ActionDelete, ResourceAll), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := dentist("user-1", []Grant{{ApplicationName: AppPlanner, Role: role("r", tt.perm)}})
			assert.Equal(t, tt.want, Authorize(p, ActionWrite, ResourcePatient))
		})
	}
}

func TestAuthorize_FlatPoolAcrossApplications(t *testing.T) {
	// A role granted for the portal satisfies checks made for planner resources.
	p := dentist("user-1", []Grant{
		{ApplicationName: AppPortal, Role: role("portal-admin", perm(ActionManage, ResourcePatient))},
	})

	assert.True(t, Authorize(p, ActionDelete, ResourcePatient))
	assert.False(t, HasAppAccess(p, AppPlanner))
}

func TestAuthorize_OrAcrossGrants(t *testing.T) {
	p := dentist("user-1", []Grant{
		{ApplicationName: AppPortal, Role: role("viewer", perm(ActionRead, ResourceClinic))},
		{ApplicationName: AppPlanner, Role: role("dentist", perm(ActionRead, ResourcePatient), perm(ActionWrite, ResourcePlanning))},
	})

	assert.True(t, Authorize(p, ActionRead, ResourceClinic))
	assert.True(t, Authorize(p, ActionWrite, ResourcePlanning))
	assert.False(t, Authorize(p, ActionWrite, ResourceClinic))
}

func TestAuthorize_Total(t *testing.T) {
	assert.False(t, Authorize(nil, ActionRead, ResourcePatient))

	p := dentist("user-1", []Grant{{ApplicationName: AppPlanner, Role: nil}})
	assert.NotPanics(t, func() {
		assert.False(t, Authorize(p, ActionRead, ResourcePatient))
	})
}

func TestAuthorize_RevocationImmediacy(t *testing.T) {
	grants := []Grant{
		{ApplicationName: AppPlanner, Role: role("dentist", perm(ActionWrite, ResourcePatient))},
		{ApplicationName: AppPortal, Role: role("viewer", perm(ActionRead, ResourceClinic))},
	}
	before := dentist("user-1", grants)
	require.True(t, Authorize(before, ActionWrite, ResourcePatient))

	// Freshly loaded after the planner grant was deleted
	after := dentist("user-1", grants[1:])
	assert.False(t, Authorize(after, ActionWrite, ResourcePatient))
	assert.False(t, HasAppAccess(after, AppPlanner))
	assert.True(t, Authorize(after, ActionRead, ResourceClinic))
}

func TestHasAppAccess(t *testing.T) {
	p := dentist("user-1", []Grant{{ApplicationName: AppPlanner, Role: role("dentist")}})

	assert.True(t, HasAppAccess(p, AppPlanner))
	assert.False(t, HasAppAccess(p, AppPortal))
	assert.True(t, HasAppAccess(superAdmin("admin-1"), AppPortal))
	assert.False(t, HasAppAccess(nil, AppPortal))
	assert.False(t, HasAppAccess(dentist("user-2", nil), AppPlanner))
}

func TestScopeFilter(t *testing.T) {
	reader := dentist("reader", []Grant{{ApplicationName: AppPlanner, Role: role("dentist", perm(ActionRead, ResourcePatient))}}, "clinic-a", "clinic-b")
	manager := dentist("manager", []Grant{{ApplicationName: AppPlanner, Role: role("head", perm(ActionManage, ResourcePatient))}}, "clinic-a")
	allManager := dentist("owner", []Grant{{ApplicationName: AppPortal, Role: role("boss", perm(ActionManage, ResourceAll))}}, "clinic-a")
	admin := superAdmin("admin", "clinic-a", "clinic-b")

	tests := []struct {
		name      string
		principal *Principal
		clinic    string
		resource  Resource
		want      Scope
		wantErr   error
	}{
		{"reader is owner-restricted", reader, "clinic-a", ResourcePatient, Scope{"tenant-1", "clinic-a", "reader"}, nil},
		{"reader in second clinic", reader, "clinic-b", ResourcePatient, Scope{"tenant-1", "clinic-b", "reader"}, nil},
		{"manage patient sees whole clinic", manager, "clinic-a", ResourcePatient, Scope{"tenant-1", "clinic-a", ""}, nil},
		{"manage patient is owner-restricted on contracts", manager, "clinic-a", ResourceContract, Scope{"tenant-1", "clinic-a", "manager"}, nil},
		{"manage all sees whole clinic", allManager, "clinic-a", ResourceContract, Scope{"tenant-1", "clinic-a", ""}, nil},
		{"super-admin never owner-restricted", admin, "clinic-b", ResourcePatient, Scope{"tenant-1", "clinic-b", ""}, nil},
		{"missing clinic", reader, "", ResourcePatient, Scope{}, ErrMissingClinicContext},
		{"missing clinic for super-admin", admin, "", ResourcePatient, Scope{}, ErrMissingClinicContext},
		{"clinic not a member of", manager, "clinic-b", ResourcePatient, Scope{}, ErrForbidden},
		{"clinic of another tenant", admin, "clinic-t2", ResourcePatient, Scope{}, ErrForbidden},
		{"no principal", nil, "clinic-a", ResourcePatient, Scope{}, ErrUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScopeFilter(tt.principal, tt.clinic, tt.resource)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, Scope{}, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScopeFilter_OwnerRestrictionFollowsManage(t *testing.T) {
	for _, r := range []Resource{ResourcePatient, ResourcePlanning, ResourceContract, ResourceTreatment} {
		plain := dentist("plain", []Grant{{ApplicationName: AppPlanner, Role: role("d", perm(ActionRead, r), perm(ActionWrite, r))}}, "clinic-a")
		s, err := ScopeFilter(plain, "clinic-a", r)
		require.NoError(t, err)
		assert.True(t, s.OwnerRestricted(), "resource %s", r)
		assert.Equal(t, "plain", s.OwnerID)

		mgr := dentist("mgr", []Grant{{ApplicationName: AppPlanner, Role: role("m", perm(ActionManage, r))}}, "clinic-a")
		s, err = ScopeFilter(mgr, "clinic-a", r)
		require.NoError(t, err)
		assert.False(t, s.OwnerRestricted(), "resource %s", r)
	}
}

func TestScopeAllows(t *testing.T) {
	owned := Scope{TenantID: "tenant-1", ClinicID: "clinic-a", OwnerID: "user-1"}
	clinicWide := Scope{TenantID: "tenant-1", ClinicID: "clinic-a"}

	tests := []struct {
		name                      string
		scope                     Scope
		tenant, clinic, recordOwn string
		want                      bool
	}{
		{"own record", owned, "tenant-1", "clinic-a", "user-1", true},
		{"someone else's record", owned, "tenant-1", "clinic-a", "user-2", false},
		{"other clinic same tenant", owned, "tenant-1", "clinic-b", "user-1", false},
		{"other tenant", owned, "tenant-2", "clinic-a", "user-1", false},
		{"clinic-wide any owner", clinicWide, "tenant-1", "clinic-a", "user-9", true},
		{"clinic-wide other clinic", clinicWide, "tenant-1", "clinic-b", "user-9", false},
		{"clinic-wide other tenant", clinicWide, "tenant-2", "clinic-a", "user-9", false},
		{"zero scope allows nothing", Scope{}, "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scope.Allows(tt.tenant, tt.clinic, tt.recordOwn))
		})
	}
}

// Clinic isolation: a principal who belongs to clinics A and B but selected A can never
// be handed a scope that admits a record of B.
func TestClinicIsolation(t *testing.T) {
	principals := []*Principal{
		dentist("reader", []Grant{{ApplicationName: AppPlanner, Role: role("d", perm(ActionRead, ResourcePatient))}}, "clinic-a", "clinic-b"),
		dentist("manager", []Grant{{ApplicationName: AppPlanner, Role: role("m", perm(ActionManage, ResourceAll))}}, "clinic-a", "clinic-b"),
		superAdmin("admin", "clinic-a", "clinic-b"),
	}

	for _, p := range principals {
		for _, r := range allResources {
			s, err := ScopeFilter(p, "clinic-a", r)
			require.NoError(t, err)
			assert.False(t, s.Allows("tenant-1", "clinic-b", p.ID), "%s resource %s leaked clinic-b", p.ID, r)
			assert.False(t, s.Allows("tenant-2", "clinic-a", p.ID), "%s resource %s leaked tenant-2", p.ID, r)
		}
	}
}
