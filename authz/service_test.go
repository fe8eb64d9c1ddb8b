package authz

import (
	"context"
	"errors"
	"testing"
	"time"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// MockClinicRepository implements ClinicRepository in memory
type MockClinicRepository struct {
	Clinics map[string]*Clinic
}

func NewMockClinicRepository() *MockClinicRepository {
	return &MockClinicRepository{Clinics: make(map[string]*Clinic)}
}

func (m *MockClinicRepository) Create(ctx context.Context, clinic *Clinic) error {
	clinic.CreatedAt = time.Now()
	clinic.UpdatedAt = clinic.CreatedAt
	m.Clinics[clinic.ID] = clinic
	return nil
}

func (m *MockClinicRepository) Get(ctx context.Context, tenantID, id string) (*Clinic, error) {
	c, ok := m.Clinics[id]
	if !ok || c.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *MockClinicRepository) ListByTenant(ctx context.Context, tenantID string) ([]Clinic, error) {
	var out []Clinic
	for _, c := range m.Clinics {
		if c.TenantID == tenantID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *MockClinicRepository) Update(ctx context.Context, clinic *Clinic) error {
	if _, err := m.Get(ctx, clinic.TenantID, clinic.ID); err != nil {
		return err
	}
	m.Clinics[clinic.ID] = clinic
	return nil
}

// MockMembershipManager implements ClinicMembershipManager in memory
type MockMembershipManager struct {
	Members map[string]map[string]bool // clinicID -> userID
}

func NewMockMembershipManager() *MockMembershipManager {
	return &MockMembershipManager{Members: make(map[string]map[string]bool)}
}

func (m *MockMembershipManager) AddMember(ctx context.Context, tenantID, clinicID, userID string) error {
	if m.Members[clinicID] == nil {
		m.Members[clinicID] = make(map[string]bool)
	}
	m.Members[clinicID][userID] = true
	return nil
}

func (m *MockMembershipManager) RemoveMember(ctx context.Context, tenantID, clinicID, userID string) error {
	if !m.Members[clinicID][userID] {
		return ErrNotFound
	}
	delete(m.Members[clinicID], userID)
	return nil
}

func (m *MockMembershipManager) ListMembers(ctx context.Context, tenantID, clinicID string) ([]ClinicMember, error) {
	var out []ClinicMember
	for userID := range m.Members[clinicID] {
		out = append(out, ClinicMember{UserID: userID, ClinicID: clinicID})
	}
	return out, nil
}

func (m *MockMembershipManager) IsMember(ctx context.Context, tenantID, clinicID, userID string) (bool, error) {
	return m.Members[clinicID][userID], nil
}

// MockGrantManager implements GrantManager in memory
type MockGrantManager struct {
	Grants map[string]map[Application]string // userID -> app -> roleID
}

func NewMockGrantManager() *MockGrantManager {
	return &MockGrantManager{Grants: make(map[string]map[Application]string)}
}

func (m *MockGrantManager) AssignRole(ctx context.Context, tenantID, userID string, app Application, roleID string) error {
	if m.Grants[userID] == nil {
		m.Grants[userID] = make(map[Application]string)
	}
	m.Grants[userID][app] = roleID
	return nil
}

func (m *MockGrantManager) RevokeAppAccess(ctx context.Context, tenantID, userID string, app Application) error {
	if _, ok := m.Grants[userID][app]; !ok {
		return ErrNotFound
	}
	delete(m.Grants[userID], app)
	return nil
}

func (m *MockGrantManager) ListGrants(ctx context.Context, tenantID, userID string) ([]AppAccess, error) {
	var out []AppAccess
	for app, roleID := range m.Grants[userID] {
		out = append(out, AppAccess{UserID: userID, Application: app, RoleID: roleID})
	}
	return out, nil
}

// ============================================================================
// Helpers
// ============================================================================

func newTestAdminService() (*AdminService, *MockClinicRepository, *MockMembershipManager, *MockGrantManager) {
	clinics := NewMockClinicRepository()
	members := NewMockMembershipManager()
	grants := NewMockGrantManager()
	return NewAdminService(clinics, members, grants), clinics, members, grants
}

func rcFor(p *Principal, clinic string) RequestContext {
	return NewRequestContext(*p, clinic)
}

func clinicAdmin(id string, clinics ...string) *Principal {
	return dentist(id, []Grant{{ApplicationName: AppPortal, Role: role("clinic-admin",
		perm(ActionManage, ResourceClinic), perm(ActionManage, ResourceRole))}}, clinics...)
}

func plainDentist(id string, clinics ...string) *Principal {
	return dentist(id, []Grant{{ApplicationName: AppPlanner, Role: role("dentist",
		perm(ActionRead, ResourcePatient), perm(ActionRead, ResourceClinic))}}, clinics...)
}

// ============================================================================
// AdminService Tests
// ============================================================================

func TestAdminService_CreateClinic(t *testing.T) {
	svc, clinics, members, _ := newTestAdminService()
	ctx := context.Background()

	tests := []struct {
		name       string
		principal  *Principal
		input      CreateClinicInput
		wantErr    error
		wantMember bool
	}{
		{
			name:       "clinic admin becomes member",
			principal:  clinicAdmin("admin-1"),
			input:      CreateClinicInput{Name: "  Downtown  "},
			wantMember: true,
		},
		{
			name:      "super-admin is not added as member",
			principal: superAdmin("root"),
			input:     CreateClinicInput{Name: "Uptown"},
		},
		{
			name:      "dentist cannot create",
			principal: plainDentist("d-1"),
			input:     CreateClinicInput{Name: "Nope"},
			wantErr:   ErrForbidden,
		},
		{
			name:      "name required",
			principal: clinicAdmin("admin-1"),
			input:     CreateClinicInput{Name: "   "},
			wantErr:   ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clinic, err := svc.CreateClinic(ctx, rcFor(tt.principal, ""), tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CreateClinic() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if clinic.TenantID != tt.principal.TenantID {
				t.Errorf("clinic tenant = %s, want %s", clinic.TenantID, tt.principal.TenantID)
			}
			if _, ok := clinics.Clinics[clinic.ID]; !ok {
				t.Error("clinic was not stored")
			}
			if got := members.Members[clinic.ID][tt.principal.ID]; got != tt.wantMember {
				t.Errorf("creator membership = %v, want %v", got, tt.wantMember)
			}
		})
	}
}

func TestAdminService_ListClinics(t *testing.T) {
	svc, clinics, _, _ := newTestAdminService()
	ctx := context.Background()

	clinics.Clinics["clinic-a"] = &Clinic{ID: "clinic-a", TenantID: "tenant-1", Name: "A"}
	clinics.Clinics["clinic-b"] = &Clinic{ID: "clinic-b", TenantID: "tenant-1", Name: "B"}
	clinics.Clinics["clinic-t2"] = &Clinic{ID: "clinic-t2", TenantID: "tenant-2", Name: "Other"}

	got, err := svc.ListClinics(ctx, rcFor(plainDentist("d-1", "clinic-a"), ""))
	if err != nil {
		t.Fatalf("ListClinics() unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "clinic-a" {
		t.Errorf("dentist sees %+v, want only clinic-a", got)
	}

	got, err = svc.ListClinics(ctx, rcFor(superAdmin("root"), ""))
	if err != nil {
		t.Fatalf("ListClinics() unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("super-admin sees %d clinics, want the 2 of tenant-1", len(got))
	}
}

func TestAdminService_ClinicMembers(t *testing.T) {
	svc, _, members, _ := newTestAdminService()
	ctx := context.Background()
	admin := rcFor(clinicAdmin("admin-1", "clinic-a"), "clinic-a")

	if err := svc.AddClinicMember(ctx, admin, "clinic-a", "d-1"); err != nil {
		t.Fatalf("AddClinicMember() unexpected error: %v", err)
	}
	if !members.Members["clinic-a"]["d-1"] {
		t.Error("member not added")
	}

	if err := svc.AddClinicMember(ctx, admin, "", "d-1"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("AddClinicMember() error = %v, want ErrInvalidInput", err)
	}

	dentistRC := rcFor(plainDentist("d-1", "clinic-a"), "clinic-a")
	if err := svc.AddClinicMember(ctx, dentistRC, "clinic-a", "d-2"); !errors.Is(err, ErrForbidden) {
		t.Errorf("dentist AddClinicMember() error = %v, want ErrForbidden", err)
	}

	list, err := svc.ListClinicMembers(ctx, dentistRC, "clinic-a")
	if err != nil {
		t.Fatalf("ListClinicMembers() unexpected error: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListClinicMembers() = %d members, want 1", len(list))
	}

	if _, err := svc.ListClinicMembers(ctx, dentistRC, "clinic-b"); !errors.Is(err, ErrForbidden) {
		t.Errorf("ListClinicMembers() of non-member clinic error = %v, want ErrForbidden", err)
	}

	if err := svc.RemoveClinicMember(ctx, admin, "clinic-a", "d-1"); err != nil {
		t.Fatalf("RemoveClinicMember() unexpected error: %v", err)
	}
	if err := svc.RemoveClinicMember(ctx, admin, "clinic-a", "d-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second RemoveClinicMember() error = %v, want ErrNotFound", err)
	}
}

func TestAdminService_AssignRole(t *testing.T) {
	svc, _, _, grants := newTestAdminService()
	ctx := context.Background()
	admin := rcFor(clinicAdmin("admin-1"), "")

	tests := []struct {
		name    string
		rc      RequestContext
		userID  string
		input   AssignRoleInput
		wantErr error
	}{
		{"grant planner", admin, "d-1", AssignRoleInput{Application: AppPlanner, RoleID: "role-dentist"}, nil},
		{"replace planner", admin, "d-1", AssignRoleInput{Application: AppPlanner, RoleID: "role-head"}, nil},
		{"unknown application", admin, "d-1", AssignRoleInput{Application: "billing", RoleID: "role-x"}, ErrInvalidInput},
		{"missing role", admin, "d-1", AssignRoleInput{Application: AppPortal}, ErrInvalidInput},
		{"dentist cannot grant", rcFor(plainDentist("d-2"), ""), "d-2", AssignRoleInput{Application: AppPortal, RoleID: "role-head"}, ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.AssignRole(ctx, tt.rc, tt.userID, tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AssignRole() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if got := grants.Grants["d-1"][AppPlanner]; got != "role-head" {
		t.Errorf("planner role = %s, want role-head (one grant per application)", got)
	}
	if _, ok := grants.Grants["d-2"]; ok {
		t.Error("forbidden assignment reached the grant manager")
	}
}

func TestAdminService_RevokeAndListGrants(t *testing.T) {
	svc, _, _, grants := newTestAdminService()
	ctx := context.Background()
	admin := rcFor(clinicAdmin("admin-1"), "")

	_ = grants.AssignRole(ctx, "tenant-1", "d-1", AppPlanner, "role-dentist")
	_ = grants.AssignRole(ctx, "tenant-1", "d-1", AppPortal, "role-viewer")

	self := rcFor(plainDentist("d-1"), "")
	list, err := svc.ListGrants(ctx, self, "d-1")
	if err != nil {
		t.Fatalf("ListGrants() for self unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("ListGrants() = %d grants, want 2", len(list))
	}

	if _, err := svc.ListGrants(ctx, self, "d-2"); !errors.Is(err, ErrForbidden) {
		t.Errorf("ListGrants() for another user error = %v, want ErrForbidden", err)
	}

	if err := svc.RevokeAppAccess(ctx, self, "d-1", AppPlanner); !errors.Is(err, ErrForbidden) {
		t.Errorf("self RevokeAppAccess() error = %v, want ErrForbidden", err)
	}
	if err := svc.RevokeAppAccess(ctx, admin, "d-1", AppPlanner); err != nil {
		t.Fatalf("RevokeAppAccess() unexpected error: %v", err)
	}
	if _, ok := grants.Grants["d-1"][AppPlanner]; ok {
		t.Error("planner grant still present after revoke")
	}
}
