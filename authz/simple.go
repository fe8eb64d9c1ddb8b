package authz

import "database/sql"

// SQLBackend bundles the SQL implementations the API needs.
// The resolver itself is pure: everything here only loads or mutates state.
type SQLBackend struct {
	Principals PrincipalStore
	Grants     GrantManager
	Members    ClinicMembershipManager
	Tenants    TenantRepository
	Clinics    ClinicRepository
}

// NewSQLBackend creates all SQL implementations at once
func NewSQLBackend(db *sql.DB) *SQLBackend {
	return &SQLBackend{
		Principals: NewSQLPrincipalStore(db),
		Grants:     NewSQLGrantManager(db),
		Members:    NewSQLClinicMembershipManager(db),
		Tenants:    NewSQLTenantRepository(db),
		Clinics:    NewSQLClinicRepository(db),
	}
}
