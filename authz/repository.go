package authz

import (
	"context"
	"time"
)

// Tenant is the top-level isolation boundary (a practice group)
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Clinic is a sub-unit of exactly one tenant
type Clinic struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TenantRepository handles CRUD operations for tenants.
// This is purely a data access layer - no authorization logic.
type TenantRepository interface {
	Create(ctx context.Context, tenant *Tenant) error
	Get(ctx context.Context, id string) (*Tenant, error)
	// Count returns the number of tenants; zero means the system is uninitialized
	Count(ctx context.Context) (int, error)
}

// ClinicRepository handles CRUD operations for clinics.
// Every method is bounded to one tenant.
type ClinicRepository interface {
	Create(ctx context.Context, clinic *Clinic) error
	Get(ctx context.Context, tenantID, id string) (*Clinic, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Clinic, error)
	Update(ctx context.Context, clinic *Clinic) error
}
