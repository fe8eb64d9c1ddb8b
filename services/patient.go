package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/orthodesk/orthodesk/authz"
	"github.com/orthodesk/orthodesk/db"
)

const (
	defaultPatientLimit = 50
	maxPatientLimit     = 200
)

// PatientService serves patients within the caller's resolved scope.
// Every query carries the tenant and clinic predicate, plus the owner predicate when the
// caller does not manage patients.
type PatientService struct {
	PG  *sql.DB
	Log *logrus.Logger
}

func NewPatientService(pg *sql.DB, log *logrus.Logger) *PatientService {
	if log == nil {
		log = logrus.New()
	}
	return &PatientService{PG: pg, Log: log}
}

// ListPatientsFilter narrows a patient listing
type ListPatientsFilter struct {
	Search string
	Limit  int
	Offset int
}

const patientColumns = `p.id, p.tenant_id, p.clinic_id, p.owner_id, p.first_name, p.last_name,
	p.date_of_birth, COALESCE(p.email, ''), COALESCE(p.phone, ''), COALESCE(p.notes, ''),
	p.created_at, p.updated_at`

func scanPatient(row interface{ Scan(...interface{}) error }) (db.Patient, error) {
	var p db.Patient
	var dob sql.NullTime
	err := row.Scan(&p.ID, &p.TenantID, &p.ClinicID, &p.OwnerID, &p.FirstName, &p.LastName,
		&dob, &p.Email, &p.Phone, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if dob.Valid {
		p.DateOfBirth = &dob.Time
	}
	return p, err
}

// List returns the patients visible to the caller in the active clinic
func (s *PatientService) List(ctx context.Context, rc authz.RequestContext, filter ListPatientsFilter) ([]db.Patient, error) {
	scope, err := requireScope(rc, authz.ActionRead, authz.ResourcePatient)
	if err != nil {
		return nil, err
	}
	where, args, err := scopeClause(scope, "p", 1)
	if err != nil {
		return nil, err
	}

	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		where += fmt.Sprintf(" AND (LOWER(p.first_name) LIKE $%[1]d OR LOWER(p.last_name) LIKE $%[1]d)", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPatientLimit
	}
	if limit > maxPatientLimit {
		limit = maxPatientLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	query := fmt.Sprintf(`
		SELECT %s
		FROM patients p
		WHERE %s
		ORDER BY p.last_name, p.first_name, p.id
		LIMIT $%d OFFSET $%d
	`, patientColumns, where, len(args)-1, len(args))

	rows, err := s.PG.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	defer rows.Close()

	patients := []db.Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

// Get returns one patient. A patient outside the caller's scope is reported as not found.
func (s *PatientService) Get(ctx context.Context, rc authz.RequestContext, patientID string) (*db.Patient, error) {
	scope, err := requireScope(rc, authz.ActionRead, authz.ResourcePatient)
	if err != nil {
		return nil, err
	}
	return s.getScoped(ctx, scope, patientID)
}

func (s *PatientService) getScoped(ctx context.Context, scope authz.Scope, patientID string) (*db.Patient, error) {
	where, args, err := scopeClause(scope, "p", 2)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM patients p WHERE p.id = $1 AND %s`, patientColumns, where)

	p, err := scanPatient(s.PG.QueryRowContext(ctx, query, append([]interface{}{patientID}, args...)...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authz.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	if !scope.Allows(p.TenantID, p.ClinicID, p.OwnerID) {
		s.Log.WithFields(logrus.Fields{"patient_id": p.ID, "clinic_id": scope.ClinicID}).
			Error("AUTHZ VIOLATION - scoped query returned a patient outside the scope")
		return nil, authz.ErrNotFound
	}
	return &p, nil
}

// Create adds a patient to the active clinic, owned by the caller
func (s *PatientService) Create(ctx context.Context, rc authz.RequestContext, req db.CreatePatientRequest) (*db.Patient, error) {
	scope, err := requireScope(rc, authz.ActionWrite, authz.ResourcePatient)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return nil, fmt.Errorf("%w: first and last name are required", authz.ErrInvalidInput)
	}

	now := time.Now()
	p := db.Patient{
		ID:          uuid.New().String(),
		TenantID:    scope.TenantID,
		ClinicID:    scope.ClinicID,
		OwnerID:     rc.UserID(),
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		DateOfBirth: req.DateOfBirth,
		Email:       req.Email,
		Phone:       req.Phone,
		Notes:       req.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = s.PG.ExecContext(ctx, `
		INSERT INTO patients (id, tenant_id, clinic_id, owner_id, first_name, last_name,
		                      date_of_birth, email, phone, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, p.ID, p.TenantID, p.ClinicID, p.OwnerID, p.FirstName, p.LastName,
		nullTime(p.DateOfBirth), nullIfEmptyStr(p.Email), nullIfEmptyStr(p.Phone), nullIfEmptyStr(p.Notes), now)
	if err != nil {
		return nil, fmt.Errorf("failed to create patient: %w", err)
	}
	return &p, nil
}

// Update changes the given fields of a patient within the caller's scope
func (s *PatientService) Update(ctx context.Context, rc authz.RequestContext, patientID string, req db.UpdatePatientRequest) (*db.Patient, error) {
	scope, err := requireScope(rc, authz.ActionWrite, authz.ResourcePatient)
	if err != nil {
		return nil, err
	}

	sets := []string{}
	args := []interface{}{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if req.FirstName != nil {
		if strings.TrimSpace(*req.FirstName) == "" {
			return nil, fmt.Errorf("%w: first name cannot be empty", authz.ErrInvalidInput)
		}
		add("first_name", strings.TrimSpace(*req.FirstName))
	}
	if req.LastName != nil {
		if strings.TrimSpace(*req.LastName) == "" {
			return nil, fmt.Errorf("%w: last name cannot be empty", authz.ErrInvalidInput)
		}
		add("last_name", strings.TrimSpace(*req.LastName))
	}
	if req.DateOfBirth != nil {
		add("date_of_birth", *req.DateOfBirth)
	}
	if req.Email != nil {
		add("email", nullIfEmptyStr(*req.Email))
	}
	if req.Phone != nil {
		add("phone", nullIfEmptyStr(*req.Phone))
	}
	if req.Notes != nil {
		add("notes", nullIfEmptyStr(*req.Notes))
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", authz.ErrInvalidInput)
	}
	add("updated_at", time.Now())

	args = append(args, patientID)
	idArg := len(args)
	where, scopeArgs, err := scopeClause(scope, "p", idArg+1)
	if err != nil {
		return nil, err
	}
	args = append(args, scopeArgs...)

	query := fmt.Sprintf(`UPDATE patients p SET %s WHERE p.id = $%d AND %s`, strings.Join(sets, ", "), idArg, where)
	result, err := s.PG.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update patient: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, authz.ErrNotFound
	}
	return s.getScoped(ctx, scope, patientID)
}

// Delete removes a patient. Only the owner or a user managing patients can do so.
func (s *PatientService) Delete(ctx context.Context, rc authz.RequestContext, patientID string) error {
	scope, err := requireScope(rc, authz.ActionDelete, authz.ResourcePatient)
	if err != nil {
		return err
	}
	where, args, err := scopeClause(scope, "p", 2)
	if err != nil {
		return err
	}

	result, err := s.PG.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM patients p WHERE p.id = $1 AND %s`, where),
		append([]interface{}{patientID}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to delete patient: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return authz.ErrNotFound
	}

	s.Log.WithFields(logrus.Fields{"patient_id": patientID, "user_id": rc.UserID()}).Info("patient deleted")
	return nil
}

// Transfer hands a patient over to another member of the same clinic.
// The caller needs transfer:patient and the transfer capability flag; the patient must
// be in the caller's scope.
func (s *PatientService) Transfer(ctx context.Context, rc authz.RequestContext, patientID, newOwnerID string) (*db.Patient, error) {
	scope, err := requireScope(rc, authz.ActionTransfer, authz.ResourcePatient)
	if err != nil {
		return nil, err
	}
	if p := rc.Principal(); !p.IsSuperAdmin && !p.CanTransferPatient {
		return nil, authz.ErrForbidden
	}
	if newOwnerID == "" {
		return nil, fmt.Errorf("%w: new owner is required", authz.ErrInvalidInput)
	}
	patient, err := s.getScoped(ctx, scope, patientID)
	if err != nil {
		return nil, err
	}
	if patient.OwnerID == newOwnerID {
		return patient, nil
	}

	result, err := s.PG.ExecContext(ctx, `
		UPDATE patients p
		SET owner_id = $1, updated_at = $2
		WHERE p.id = $3 AND p.tenant_id = $4 AND p.clinic_id = $5
		  AND EXISTS (
			SELECT 1 FROM clinic_members m
			JOIN users u ON u.id = m.user_id
			WHERE m.user_id = $1 AND m.clinic_id = p.clinic_id
			  AND u.tenant_id = p.tenant_id AND u.is_active = true
		  )
	`, newOwnerID, time.Now(), patient.ID, patient.TenantID, patient.ClinicID)
	if err != nil {
		return nil, fmt.Errorf("failed to transfer patient: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: new owner is not an active member of the clinic", authz.ErrInvalidInput)
	}

	s.Log.WithFields(logrus.Fields{
		"patient_id": patient.ID,
		"from":       patient.OwnerID,
		"to":         newOwnerID,
		"by":         rc.UserID(),
	}).Info("patient transferred")

	patient.OwnerID = newOwnerID
	return patient, nil
}

// nullIfEmptyStr returns nil if string is empty, otherwise returns the string
func nullIfEmptyStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
