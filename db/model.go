package db

import "time"

// ===========================
// ACCOUNT MODELS
// ===========================

// User is a staff account of a tenant
type User struct {
	ID                 string    `json:"id"`
	TenantID           string    `json:"tenant_id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"-"`
	IsSuperAdmin       bool      `json:"is_super_admin"`
	CanTransferPatient bool      `json:"can_transfer_patient"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// RegisterRequest signs up a new practice group with its first (super-admin) user
type RegisterRequest struct {
	TenantName string `json:"tenant_name" binding:"required"`
	ClinicName string `json:"clinic_name" binding:"required"`
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=8"`
}

// CreateUserRequest adds a staff member to the caller's tenant
type CreateUserRequest struct {
	Name               string `json:"name" binding:"required"`
	Email              string `json:"email" binding:"required,email"`
	Password           string `json:"password" binding:"required,min=8"`
	CanTransferPatient bool   `json:"can_transfer_patient"`
	// Optional clinic the new user joins right away
	ClinicID string `json:"clinic_id,omitempty" binding:"omitempty,uuid"`
}

// ===========================
// ROLE CATALOG MODELS
// ===========================

// PermissionInput is a permission as submitted by the portal
type PermissionInput struct {
	Action      string `json:"action" binding:"required"`
	Resource    string `json:"resource" binding:"required"`
	Application string `json:"application,omitempty"`
}

type CreateRoleRequest struct {
	Name        string            `json:"name" binding:"required"`
	Description string            `json:"description"`
	Permissions []PermissionInput `json:"permissions"`
}

type SetRolePermissionsRequest struct {
	Permissions []PermissionInput `json:"permissions"`
}

// ===========================
// PATIENT MODELS
// ===========================

// Patient is the root of every clinical record; tenant, clinic and owner live here only
type Patient struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	ClinicID    string     `json:"clinic_id"`
	OwnerID     string     `json:"owner_id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Email       string     `json:"email,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type CreatePatientRequest struct {
	FirstName   string     `json:"first_name" binding:"required"`
	LastName    string     `json:"last_name" binding:"required"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Email       string     `json:"email,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

type UpdatePatientRequest struct {
	FirstName   *string    `json:"first_name,omitempty"`
	LastName    *string    `json:"last_name,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Email       *string    `json:"email,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

type TransferPatientRequest struct {
	NewOwnerID string `json:"new_owner_id" binding:"required,uuid"`
}

// ===========================
// PATIENT-DERIVED RECORDS
// ===========================

// Planning is a treatment plan drafted for a patient
type Planning struct {
	ID          string    `json:"id"`
	PatientID   string    `json:"patient_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"` // draft, proposed, accepted, rejected
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Contract is the financial agreement covering a patient's treatment
type Contract struct {
	ID          string     `json:"id"`
	PatientID   string     `json:"patient_id"`
	AmountCents int64      `json:"amount_cents"`
	Currency    string     `json:"currency"`
	Status      string     `json:"status"` // draft, signed, cancelled
	SignedAt    *time.Time `json:"signed_at,omitempty"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Treatment is an appliance or phase actually carried out
type Treatment struct {
	ID          string     `json:"id"`
	PatientID   string     `json:"patient_id"`
	PlanningID  string     `json:"planning_id,omitempty"`
	Description string     `json:"description"`
	Status      string     `json:"status"` // planned, active, completed
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type CreatePlanningRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

type CreateContractRequest struct {
	AmountCents int64  `json:"amount_cents" binding:"required"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
}

type CreateTreatmentRequest struct {
	PlanningID  string     `json:"planning_id,omitempty" binding:"omitempty,uuid"`
	Description string     `json:"description" binding:"required"`
	Status      string     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
}
