package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/orthodesk/orthodesk/authz"
	"github.com/orthodesk/orthodesk/db"
)

// ErrInvalidCredentials is returned for an unknown email or a wrong password alike
var ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", authz.ErrUnauthenticated)

var errRegistrationClosed = fmt.Errorf("%w: registration is closed, ask an administrator for an account", authz.ErrForbidden)

// bootstrapLockKey is the advisory lock held while the first tenant is created
const bootstrapLockKey int64 = 0x6f72746f

type AuthService struct {
	PG         *sql.DB
	JWTService *JWTService
	Tenants    authz.TenantRepository
	Log        *logrus.Logger
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	User      db.User   `json:"user"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	Message   string    `json:"message"`
}

// ProvisionResult is what bootstrapping a tenant creates
type ProvisionResult struct {
	Tenant authz.Tenant `json:"tenant"`
	Clinic authz.Clinic `json:"clinic"`
	User   db.User      `json:"user"`
}

func NewAuthService(pg *sql.DB, jwtService *JWTService, tenants authz.TenantRepository, log *logrus.Logger) *AuthService {
	if log == nil {
		log = logrus.New()
	}
	return &AuthService{
		PG:         pg,
		JWTService: jwtService,
		Tenants:    tenants,
		Log:        log,
	}
}

// HashPassword creates a bcrypt hash of the password
func (s *AuthService) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// Register bootstraps the very first tenant. Its user becomes the tenant's super-admin.
// Once any tenant exists, accounts are created by administrators instead.
func (s *AuthService) Register(ctx context.Context, req db.RegisterRequest) (*LoginResponse, error) {
	n, err := s.Tenants.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, errRegistrationClosed
	}

	// The count is checked again under a lock inside the transaction
	result, err := s.provision(ctx, req, true)
	if err != nil {
		return nil, err
	}

	s.Log.WithFields(logrus.Fields{
		"tenant_id": result.Tenant.ID,
		"user_id":   result.User.ID,
	}).Info("bootstrapped first tenant")

	return s.issue(result.User, "Registration successful")
}

// Provision creates a tenant, its first clinic and a super-admin user in one transaction
func (s *AuthService) Provision(ctx context.Context, req db.RegisterRequest) (*ProvisionResult, error) {
	return s.provision(ctx, req, false)
}

// provision runs Provision. With bootstrap set it only succeeds while no tenant exists.
func (s *AuthService) provision(ctx context.Context, req db.RegisterRequest, bootstrap bool) (*ProvisionResult, error) {
	if strings.TrimSpace(req.TenantName) == "" || strings.TrimSpace(req.ClinicName) == "" {
		return nil, fmt.Errorf("%w: tenant and clinic names are required", authz.ErrInvalidInput)
	}
	hash, err := s.newPasswordHash(req.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	res := &ProvisionResult{
		Tenant: authz.Tenant{ID: uuid.New().String(), Name: strings.TrimSpace(req.TenantName), CreatedAt: now},
		User: db.User{
			ID:           uuid.New().String(),
			Name:         strings.TrimSpace(req.Name),
			Email:        normalizeEmail(req.Email),
			PasswordHash: hash,
			IsSuperAdmin: true,
			IsActive:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}
	res.User.TenantID = res.Tenant.ID
	res.Clinic = authz.Clinic{
		ID:        uuid.New().String(),
		TenantID:  res.Tenant.ID,
		Name:      strings.TrimSpace(req.ClinicName),
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := s.PG.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if bootstrap {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, bootstrapLockKey); err != nil {
			return nil, fmt.Errorf("failed to lock tenant bootstrap: %w", err)
		}
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count tenants: %w", err)
		}
		if n > 0 {
			return nil, errRegistrationClosed
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tenants (id, name, created_at) VALUES ($1, $2, $3)
	`, res.Tenant.ID, res.Tenant.Name, now); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO clinics (id, tenant_id, name, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)
	`, res.Clinic.ID, res.Tenant.ID, res.Clinic.Name, now); err != nil {
		return nil, fmt.Errorf("failed to create clinic: %w", err)
	}
	if err := insertUser(ctx, tx, &res.User); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return res, nil
}

// Login checks the password and issues a token. Inactive users cannot log in.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var user db.User
	err := s.PG.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, email, password_hash, is_super_admin, can_transfer_patient,
		       is_active, created_at, updated_at
		FROM users
		WHERE email = $1
	`, normalizeEmail(req.Email)).Scan(
		&user.ID, &user.TenantID, &user.Name, &user.Email, &user.PasswordHash,
		&user.IsSuperAdmin, &user.CanTransferPatient, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	return s.issue(user, "Login successful")
}

// Logout revokes the presented token
func (s *AuthService) Logout(ctx context.Context, rc authz.RequestContext, token string) error {
	if err := s.JWTService.Revoke(ctx, token); err != nil {
		return err
	}
	s.Log.WithFields(logrus.Fields{"user_id": rc.UserID(), "jti": rc.TokenID()}).Info("token revoked")
	return nil
}

func (s *AuthService) issue(user db.User, message string) (*LoginResponse, error) {
	token, claims, err := s.JWTService.IssueToken(user.ID, user.TenantID, user.Email)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{
		User:      user,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		Message:   message,
	}, nil
}

func (s *AuthService) newPasswordHash(password string) (string, error) {
	if len(password) < 8 {
		return "", fmt.Errorf("%w: password must be at least 8 characters", authz.ErrInvalidInput)
	}
	hash, err := s.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertUser(ctx context.Context, ex execer, u *db.User) error {
	if u.Email == "" || u.Name == "" {
		return fmt.Errorf("%w: name and email are required", authz.ErrInvalidInput)
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO users (id, tenant_id, name, email, password_hash, is_super_admin,
		                   can_transfer_patient, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, u.TenantID, u.Name, u.Email, u.PasswordHash, u.IsSuperAdmin,
		u.CanTransferPatient, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: email already registered", authz.ErrInvalidInput)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
