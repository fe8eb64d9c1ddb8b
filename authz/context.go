package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// HeaderClinicID carries the clinic the client has selected as active
const HeaderClinicID = "X-Clinic-ID"

// Claims is what a verified credential says about its bearer
type Claims struct {
	UserID   string
	TenantID string
	TokenID  string
}

// CredentialVerifier checks a bearer token's signature and expiry.
// Any failure must be reported as an error; the builder maps it to ErrUnauthenticated.
type CredentialVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// PrincipalStore loads a principal with all grants, roles, permissions and clinic
// memberships in one call. It returns ErrPrincipalNotFound when the user is gone.
type PrincipalStore interface {
	LoadPrincipal(ctx context.Context, userID string) (*Principal, error)
}

// RequestContext is the authenticated, per-request view handed to services.
// It is a value: copies share nothing mutable with the middleware that built it.
type RequestContext struct {
	principal      Principal
	activeClinicID string
	tokenID        string
}

// NewRequestContext builds a RequestContext from an already loaded principal
func NewRequestContext(p Principal, activeClinicID string) RequestContext {
	return RequestContext{principal: *p.clone(), activeClinicID: activeClinicID}
}

// Principal returns a deep copy of the authenticated principal; changing it does not
// affect later decisions on rc
func (rc RequestContext) Principal() *Principal {
	return rc.principal.clone()
}

func (rc RequestContext) UserID() string   { return rc.principal.ID }
func (rc RequestContext) TenantID() string { return rc.principal.TenantID }

// ActiveClinicID returns the clinic selected by the client (not yet validated)
func (rc RequestContext) ActiveClinicID() string { return rc.activeClinicID }

// TokenID returns the credential's jti, used to revoke it on logout
func (rc RequestContext) TokenID() string { return rc.tokenID }

func (rc RequestContext) Authorize(action Action, resource Resource) bool {
	return Authorize(&rc.principal, action, resource)
}

func (rc RequestContext) HasAppAccess(app Application) bool {
	return HasAppAccess(&rc.principal, app)
}

// Scope resolves the query scope for resource in the active clinic
func (rc RequestContext) Scope(resource Resource) (Scope, error) {
	return ScopeFilter(&rc.principal, rc.activeClinicID, resource)
}

// ContextBuilder turns raw request credentials into a RequestContext
type ContextBuilder struct {
	verifier CredentialVerifier
	store    PrincipalStore
}

// NewContextBuilder creates a new ContextBuilder
func NewContextBuilder(verifier CredentialVerifier, store PrincipalStore) *ContextBuilder {
	return &ContextBuilder{verifier: verifier, store: store}
}

// Build authenticates the Authorization header value and loads the principal.
// The clinic header is recorded as-is; membership is checked when a scope is resolved.
func (b *ContextBuilder) Build(ctx context.Context, authHeader, clinicHeader string) (RequestContext, error) {
	token, err := ExtractBearerToken(authHeader)
	if err != nil {
		return RequestContext{}, err
	}

	claims, err := b.verifier.Verify(ctx, token)
	if err != nil {
		return RequestContext{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.UserID == "" || claims.TenantID == "" {
		return RequestContext{}, fmt.Errorf("%w: incomplete claims", ErrUnauthenticated)
	}

	principal, err := b.store.LoadPrincipal(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return RequestContext{}, ErrPrincipalNotFound
		}
		return RequestContext{}, fmt.Errorf("failed to load principal: %w", err)
	}
	if principal.TenantID != claims.TenantID {
		return RequestContext{}, fmt.Errorf("%w: tenant mismatch", ErrUnauthenticated)
	}

	return RequestContext{
		principal:      *principal.clone(),
		activeClinicID: strings.TrimSpace(clinicHeader),
		tokenID:        claims.TokenID,
	}, nil
}

// ExtractBearerToken returns the token part of a "Bearer <token>" header value
func ExtractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", fmt.Errorf("%w: authorization header is required", ErrUnauthenticated)
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: invalid authorization header format", ErrUnauthenticated)
	}
	return strings.TrimSpace(token), nil
}
