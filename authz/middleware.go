package authz

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/orthodesk/orthodesk/internal/metrics"
)

// ContextKey is the type for context keys to avoid collisions
type ContextKey string

const (
	ContextKeyRequest ContextKey = "request_context"
	ContextKeyScope   ContextKey = "scope"
	ContextKeyUserID  ContextKey = "user_id"
)

// Middleware wires the context builder and resolver into Gin
type Middleware struct {
	builder *ContextBuilder
	log     *logrus.Logger
	metrics *metrics.Metrics
}

// NewMiddleware creates a new authorization middleware. m may be nil.
func NewMiddleware(builder *ContextBuilder, log *logrus.Logger, m *metrics.Metrics) *Middleware {
	if log == nil {
		log = logrus.New()
	}
	return &Middleware{builder: builder, log: log, metrics: m}
}

// Authenticate builds the RequestContext and must run before every other gate.
// Unknown principals get exactly the same response as bad credentials.
func (m *Middleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		rc, err := m.builder.Build(c.Request.Context(), c.GetHeader("Authorization"), c.GetHeader(HeaderClinicID))
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrPrincipalNotFound) {
				m.metrics.ObserveContextBuild("unauthenticated", started)
				m.log.WithError(err).WithField("path", c.FullPath()).Info("AUTH DENIED")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   "unauthorized",
					"message": "User not authenticated",
				})
				return
			}
			m.metrics.ObserveContextBuild("error", started)
			m.log.WithError(err).Error("AUTH ERROR - failed to build request context")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to authenticate request",
			})
			return
		}
		m.metrics.ObserveContextBuild("ok", started)

		c.Set(string(ContextKeyRequest), rc)
		c.Set(string(ContextKeyUserID), rc.UserID())
		c.Next()
	}
}

// RequireAppAccess denies principals without any grant for app.
// Register it before RequirePermission so the cheaper check runs first.
func (m *Middleware) RequireAppAccess(app Application) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc, ok := m.requestContext(c)
		if !ok {
			return
		}

		allowed := rc.HasAppAccess(app)
		m.metrics.RecordDecision("app", allowed)
		if !allowed {
			m.log.WithFields(logrus.Fields{"user_id": rc.UserID(), "app": app}).Info("AUTHZ DENIED - no application access")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "You don't have access to this application",
			})
			return
		}
		c.Next()
	}
}

// RequirePermission denies principals that cannot perform action on resource
func (m *Middleware) RequirePermission(action Action, resource Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc, ok := m.requestContext(c)
		if !ok {
			return
		}

		allowed := rc.Authorize(action, resource)
		m.metrics.RecordDecision("permission", allowed)
		if !allowed {
			m.log.WithFields(logrus.Fields{
				"user_id":  rc.UserID(),
				"action":   action,
				"resource": resource,
			}).Info("AUTHZ DENIED - missing permission")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "You don't have permission to perform this action",
				"details": map[string]string{
					"action":   string(action),
					"resource": string(resource),
				},
			})
			return
		}
		c.Next()
	}
}

// RequireClinicScope resolves the scope for resource in the selected clinic and stores it
// for the handler. A missing clinic is a client error, a foreign clinic is forbidden.
func (m *Middleware) RequireClinicScope(resource Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc, ok := m.requestContext(c)
		if !ok {
			return
		}

		scope, err := rc.Scope(resource)
		m.metrics.RecordDecision("clinic_scope", err == nil)
		if err != nil {
			m.log.WithFields(logrus.Fields{
				"user_id":   rc.UserID(),
				"clinic_id": rc.ActiveClinicID(),
				"resource":  resource,
			}).WithError(err).Info("AUTHZ DENIED - clinic scope")
			AbortWithError(c, err)
			return
		}

		c.Set(string(ContextKeyScope), scope)
		c.Next()
	}
}

func (m *Middleware) requestContext(c *gin.Context) (RequestContext, bool) {
	rc, ok := RequestContextFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "User not authenticated",
		})
	}
	return rc, ok
}

// RequestContextFrom retrieves the RequestContext stored by Authenticate
func RequestContextFrom(c *gin.Context) (RequestContext, bool) {
	v, ok := c.Get(string(ContextKeyRequest))
	if !ok {
		return RequestContext{}, false
	}
	rc, ok := v.(RequestContext)
	return rc, ok
}

// ScopeFrom retrieves the Scope stored by RequireClinicScope
func ScopeFrom(c *gin.Context) (Scope, bool) {
	v, ok := c.Get(string(ContextKeyScope))
	if !ok {
		return Scope{}, false
	}
	s, ok := v.(Scope)
	return s, ok
}

// HasPermission is the inline form of RequirePermission for handler logic
func HasPermission(c *gin.Context, action Action, resource Resource) bool {
	rc, ok := RequestContextFrom(c)
	if !ok {
		return false
	}
	return rc.Authorize(action, resource)
}

// StatusForError maps the package's errors onto HTTP status codes
func StatusForError(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrPrincipalNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrMissingClinicContext), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

var errorCodes = map[int]string{
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "forbidden",
	http.StatusBadRequest:          "bad_request",
	http.StatusNotFound:            "not_found",
	http.StatusInternalServerError: "internal_error",
}

// AbortWithError writes the standard error body for err and aborts the chain
func AbortWithError(c *gin.Context, err error) {
	status := StatusForError(err)
	message := err.Error()
	switch status {
	case http.StatusUnauthorized:
		message = "User not authenticated"
	case http.StatusInternalServerError:
		message = "Internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":   errorCodes[status],
		"message": message,
	})
}
