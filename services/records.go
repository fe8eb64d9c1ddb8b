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

// RecordService serves plannings, contracts and treatments.
// Child tables carry no tenant, clinic or owner: every query joins the parent patient
// and applies the caller's scope for the child resource to it.
type RecordService struct {
	PG  *sql.DB
	Log *logrus.Logger
}

func NewRecordService(pg *sql.DB, log *logrus.Logger) *RecordService {
	if log == nil {
		log = logrus.New()
	}
	return &RecordService{PG: pg, Log: log}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scopedSelect renders "SELECT cols FROM table x JOIN patients p ... WHERE scope [AND extra]"
func scopedSelect(rc authz.RequestContext, resource authz.Resource, table, columns, extra string, extraArgs ...interface{}) (string, []interface{}, error) {
	scope, err := requireScope(rc, authz.ActionRead, resource)
	if err != nil {
		return "", nil, err
	}
	where, args, err := scopeClause(scope, "p", len(extraArgs)+1)
	if err != nil {
		return "", nil, err
	}
	if extra != "" {
		where = extra + " AND " + where
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s x
		JOIN patients p ON p.id = x.patient_id
		WHERE %s
		ORDER BY x.created_at DESC, x.id
	`, columns, table, where)
	return query, append(extraArgs, args...), nil
}

// patientFilter restricts a listing to one patient when patientID is set
func patientFilter(patientID string) (string, []interface{}) {
	if patientID == "" {
		return "", nil
	}
	return "x.patient_id = $1", []interface{}{patientID}
}

// scopedInsert checks that the parent patient is in scope and inserts in one statement.
// It returns ErrNotFound when the patient is not visible to the caller.
func (s *RecordService) scopedInsert(ctx context.Context, rc authz.RequestContext, resource authz.Resource,
	insert string, values []interface{}, patientID string) error {
	scope, err := requireScope(rc, authz.ActionWrite, resource)
	if err != nil {
		return err
	}
	patientArg := len(values) + 1
	where, scopeArgs, err := scopeClause(scope, "p", patientArg+1)
	if err != nil {
		return err
	}
	args := append(append(values, patientID), scopeArgs...)

	query := fmt.Sprintf(`%s FROM patients p WHERE p.id = $%d AND %s`, insert, patientArg, where)
	result, err := s.PG.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", resource, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return authz.ErrNotFound
	}
	return nil
}

// ===========================
// PLANNINGS
// ===========================

const planningColumns = `x.id, x.patient_id, x.title, COALESCE(x.description, ''), x.status,
	x.created_by, x.created_at, x.updated_at`

func scanPlanning(row rowScanner) (db.Planning, error) {
	var p db.Planning
	err := row.Scan(&p.ID, &p.PatientID, &p.Title, &p.Description, &p.Status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// ListPlannings lists plannings in scope, optionally for one patient
func (s *RecordService) ListPlannings(ctx context.Context, rc authz.RequestContext, patientID string) ([]db.Planning, error) {
	extra, extraArgs := patientFilter(patientID)
	query, args, err := scopedSelect(rc, authz.ResourcePlanning, "plannings", planningColumns, extra, extraArgs...)
	if err != nil {
		return nil, err
	}
	rows, err := s.PG.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list plannings: %w", err)
	}
	defer rows.Close()

	out := []db.Planning{}
	for rows.Next() {
		p, err := scanPlanning(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan planning: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *RecordService) GetPlanning(ctx context.Context, rc authz.RequestContext, id string) (*db.Planning, error) {
	query, args, err := scopedSelect(rc, authz.ResourcePlanning, "plannings", planningColumns, "x.id = $1", id)
	if err != nil {
		return nil, err
	}
	p, err := scanPlanning(s.PG.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFoundOr(err, "planning")
	}
	return &p, nil
}

func (s *RecordService) CreatePlanning(ctx context.Context, rc authz.RequestContext, patientID string, req db.CreatePlanningRequest) (*db.Planning, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", authz.ErrInvalidInput)
	}
	status, err := oneOf(req.Status, "draft", "draft", "proposed", "accepted", "rejected")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	p := db.Planning{
		ID:          uuid.New().String(),
		PatientID:   patientID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Status:      status,
		CreatedBy:   rc.UserID(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.scopedInsert(ctx, rc, authz.ResourcePlanning, `
		INSERT INTO plannings (id, patient_id, title, description, status, created_by, created_at, updated_at)
		SELECT $1, p.id, $2, $3, $4, $5, $6, $6`,
		[]interface{}{p.ID, p.Title, nullIfEmptyStr(p.Description), p.Status, p.CreatedBy, now}, patientID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ===========================
// CONTRACTS
// ===========================

const contractColumns = `x.id, x.patient_id, x.amount_cents, x.currency, x.status, x.signed_at,
	x.created_by, x.created_at, x.updated_at`

func scanContract(row rowScanner) (db.Contract, error) {
	var c db.Contract
	var signedAt sql.NullTime
	err := row.Scan(&c.ID, &c.PatientID, &c.AmountCents, &c.Currency, &c.Status, &signedAt,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if signedAt.Valid {
		c.SignedAt = &signedAt.Time
	}
	return c, err
}

func (s *RecordService) ListContracts(ctx context.Context, rc authz.RequestContext, patientID string) ([]db.Contract, error) {
	extra, extraArgs := patientFilter(patientID)
	query, args, err := scopedSelect(rc, authz.ResourceContract, "contracts", contractColumns, extra, extraArgs...)
	if err != nil {
		return nil, err
	}
	rows, err := s.PG.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	out := []db.Contract{}
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *RecordService) GetContract(ctx context.Context, rc authz.RequestContext, id string) (*db.Contract, error) {
	query, args, err := scopedSelect(rc, authz.ResourceContract, "contracts", contractColumns, "x.id = $1", id)
	if err != nil {
		return nil, err
	}
	c, err := scanContract(s.PG.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFoundOr(err, "contract")
	}
	return &c, nil
}

func (s *RecordService) CreateContract(ctx context.Context, rc authz.RequestContext, patientID string, req db.CreateContractRequest) (*db.Contract, error) {
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", authz.ErrInvalidInput)
	}
	status, err := oneOf(req.Status, "draft", "draft", "signed", "cancelled")
	if err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "EUR"
	}
	if len(currency) != 3 {
		return nil, fmt.Errorf("%w: currency must be an ISO 4217 code", authz.ErrInvalidInput)
	}

	now := time.Now()
	c := db.Contract{
		ID:          uuid.New().String(),
		PatientID:   patientID,
		AmountCents: req.AmountCents,
		Currency:    currency,
		Status:      status,
		CreatedBy:   rc.UserID(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if status == "signed" {
		c.SignedAt = &now
	}
	err = s.scopedInsert(ctx, rc, authz.ResourceContract, `
		INSERT INTO contracts (id, patient_id, amount_cents, currency, status, signed_at, created_by, created_at, updated_at)
		SELECT $1, p.id, $2, $3, $4, $5, $6, $7, $7`,
		[]interface{}{c.ID, c.AmountCents, c.Currency, c.Status, nullTime(c.SignedAt), c.CreatedBy, now}, patientID)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ===========================
// TREATMENTS
// ===========================

const treatmentColumns = `x.id, x.patient_id, COALESCE(x.planning_id::text, ''), x.description, x.status,
	x.started_at, x.ended_at, x.created_by, x.created_at, x.updated_at`

func scanTreatment(row rowScanner) (db.Treatment, error) {
	var t db.Treatment
	var startedAt, endedAt sql.NullTime
	err := row.Scan(&t.ID, &t.PatientID, &t.PlanningID, &t.Description, &t.Status,
		&startedAt, &endedAt, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		t.EndedAt = &endedAt.Time
	}
	return t, err
}

func (s *RecordService) ListTreatments(ctx context.Context, rc authz.RequestContext, patientID string) ([]db.Treatment, error) {
	extra, extraArgs := patientFilter(patientID)
	query, args, err := scopedSelect(rc, authz.ResourceTreatment, "treatments", treatmentColumns, extra, extraArgs...)
	if err != nil {
		return nil, err
	}
	rows, err := s.PG.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list treatments: %w", err)
	}
	defer rows.Close()

	out := []db.Treatment{}
	for rows.Next() {
		t, err := scanTreatment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan treatment: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *RecordService) GetTreatment(ctx context.Context, rc authz.RequestContext, id string) (*db.Treatment, error) {
	query, args, err := scopedSelect(rc, authz.ResourceTreatment, "treatments", treatmentColumns, "x.id = $1", id)
	if err != nil {
		return nil, err
	}
	t, err := scanTreatment(s.PG.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFoundOr(err, "treatment")
	}
	return &t, nil
}

// CreateTreatment adds a treatment. A referenced planning must belong to the same patient.
func (s *RecordService) CreateTreatment(ctx context.Context, rc authz.RequestContext, patientID string, req db.CreateTreatmentRequest) (*db.Treatment, error) {
	if strings.TrimSpace(req.Description) == "" {
		return nil, fmt.Errorf("%w: description is required", authz.ErrInvalidInput)
	}
	status, err := oneOf(req.Status, "planned", "planned", "active", "completed")
	if err != nil {
		return nil, err
	}
	if req.PlanningID != "" {
		planning, err := s.GetPlanning(ctx, rc, req.PlanningID)
		if err != nil {
			return nil, err
		}
		if planning.PatientID != patientID {
			return nil, fmt.Errorf("%w: planning does not belong to this patient", authz.ErrInvalidInput)
		}
	}

	now := time.Now()
	t := db.Treatment{
		ID:          uuid.New().String(),
		PatientID:   patientID,
		PlanningID:  req.PlanningID,
		Description: strings.TrimSpace(req.Description),
		Status:      status,
		StartedAt:   req.StartedAt,
		CreatedBy:   rc.UserID(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.scopedInsert(ctx, rc, authz.ResourceTreatment, `
		INSERT INTO treatments (id, patient_id, planning_id, description, status, started_at, created_by, created_at, updated_at)
		SELECT $1, p.id, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $7`,
		[]interface{}{t.ID, t.PlanningID, t.Description, t.Status, nullTime(t.StartedAt), t.CreatedBy, now}, patientID)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// oneOf validates value against allowed, returning def when value is empty
func oneOf(value, def string, allowed ...string) (string, error) {
	if value == "" {
		return def, nil
	}
	for _, a := range allowed {
		if value == a {
			return value, nil
		}
	}
	return "", fmt.Errorf("%w: status must be one of %s", authz.ErrInvalidInput, strings.Join(allowed, ", "))
}

func notFoundOr(err error, kind string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return authz.ErrNotFound
	}
	return fmt.Errorf("failed to get %s: %w", kind, err)
}
