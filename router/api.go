package router

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/orthodesk/orthodesk/authz"
	"github.com/orthodesk/orthodesk/handlers"
	"github.com/orthodesk/orthodesk/internal/config"
	"github.com/orthodesk/orthodesk/internal/metrics"
	"github.com/orthodesk/orthodesk/services"
)

// NewGinRouter wires services, the authorization middleware and every route.
// rdb may be nil: logout and the role cache are then disabled.
func NewGinRouter(pg *sql.DB, rdb *redis.Client, cfg config.Config, log *logrus.Logger, registry *prometheus.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	// Add CORS middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, "+authz.HeaderClinicID)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	m := metrics.NewMetrics(registry)

	// Redis-backed pieces are optional
	var denylist services.TokenDenylist
	var roleCache services.RoleCache
	if rdb != nil {
		denylist = services.NewRedisTokenDenylist(rdb)
		roleCache = services.NewRedisRoleCache(rdb, cfg.RoleCacheTTL, m)
	}

	// Initialize services
	backend := authz.NewSQLBackend(pg)
	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.JWTTTL, denylist)
	authService := services.NewAuthService(pg, jwtService, backend.Tenants, log)
	userService := services.NewUserService(pg, authService)
	roleService := services.NewRoleService(pg, roleCache, log)
	patientService := services.NewPatientService(pg, log)
	recordService := services.NewRecordService(pg, log)
	adminService := authz.NewAdminService(backend.Clinics, backend.Members, backend.Grants)

	// Initialize authz middleware
	mw := authz.NewMiddleware(authz.NewContextBuilder(jwtService, backend.Principals), log, m)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService)
	roleHandler := handlers.NewRoleHandler(roleService)
	clinicHandler := handlers.NewClinicHandler(adminService)
	patientHandler := handlers.NewPatientHandler(patientService)
	recordHandler := handlers.NewRecordHandler(recordService)

	// PUBLIC ENDPOINTS (no authentication required)
	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pg.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}

	// PROTECTED ENDPOINTS (require a valid access token)
	protected := r.Group("/")
	protected.Use(mw.Authenticate())
	{
		protected.POST("/auth/logout", authHandler.Logout)
		protected.GET("/me", authHandler.Me)

		// =====================================================================
		// PLANNER APPLICATION (clinical records)
		// =====================================================================
		planner := protected.Group("/planner")
		planner.Use(mw.RequireAppAccess(authz.AppPlanner))
		{
			patientRoutes := planner.Group("/patients")
			{
				patientRoutes.GET("",
					mw.RequirePermission(authz.ActionRead, authz.ResourcePatient),
					mw.RequireClinicScope(authz.ResourcePatient),
					patientHandler.ListPatients)
				patientRoutes.POST("",
					mw.RequirePermission(authz.ActionWrite, authz.ResourcePatient),
					mw.RequireClinicScope(authz.ResourcePatient),
					patientHandler.CreatePatient)
				patientRoutes.GET("/:id",
					mw.RequirePermission(authz.ActionRead, authz.ResourcePatient),
					mw.RequireClinicScope(authz.ResourcePatient),
					patientHandler.GetPatient)
				patientRoutes.PATCH("/:id",
					mw.RequirePermission(authz.ActionWrite, authz.ResourcePatient),
					mw.RequireClinicScope(authz.ResourcePatient),
					patientHandler.UpdatePatient)
				patientRoutes.DELETE("/:id",
					mw.RequirePermission(authz.ActionDelete, authz.ResourcePatient),
					mw.RequireClinicScope(authz.ResourcePatient),
					patientHandler.DeletePatient)

				// The can_transfer_patient flag is checked in the service
				patientRoutes.POST("/:id/transfer",
					mw.RequirePermission(authz.ActionTransfer, authz.ResourcePatient),
					mw.RequireClinicScope(authz.ResourcePatient),
					patientHandler.TransferPatient)

				patientRoutes.POST("/:id/plannings",
					mw.RequirePermission(authz.ActionWrite, authz.ResourcePlanning),
					mw.RequireClinicScope(authz.ResourcePlanning),
					recordHandler.CreatePlanning)
				patientRoutes.POST("/:id/contracts",
					mw.RequirePermission(authz.ActionWrite, authz.ResourceContract),
					mw.RequireClinicScope(authz.ResourceContract),
					recordHandler.CreateContract)
				patientRoutes.POST("/:id/treatments",
					mw.RequirePermission(authz.ActionWrite, authz.ResourceTreatment),
					mw.RequireClinicScope(authz.ResourceTreatment),
					recordHandler.CreateTreatment)
			}

			planningRoutes := planner.Group("/plannings")
			planningRoutes.Use(
				mw.RequirePermission(authz.ActionRead, authz.ResourcePlanning),
				mw.RequireClinicScope(authz.ResourcePlanning))
			{
				planningRoutes.GET("", recordHandler.ListPlannings)
				planningRoutes.GET("/:id", recordHandler.GetPlanning)
			}

			contractRoutes := planner.Group("/contracts")
			contractRoutes.Use(
				mw.RequirePermission(authz.ActionRead, authz.ResourceContract),
				mw.RequireClinicScope(authz.ResourceContract))
			{
				contractRoutes.GET("", recordHandler.ListContracts)
				contractRoutes.GET("/:id", recordHandler.GetContract)
			}

			treatmentRoutes := planner.Group("/treatments")
			treatmentRoutes.Use(
				mw.RequirePermission(authz.ActionRead, authz.ResourceTreatment),
				mw.RequireClinicScope(authz.ResourceTreatment))
			{
				treatmentRoutes.GET("", recordHandler.ListTreatments)
				treatmentRoutes.GET("/:id", recordHandler.GetTreatment)
			}
		}

		// =====================================================================
		// PORTAL APPLICATION (administration)
		// =====================================================================
		portal := protected.Group("/portal")
		portal.Use(mw.RequireAppAccess(authz.AppPortal))
		{
			clinicRoutes := portal.Group("/clinics")
			{
				clinicRoutes.GET("", clinicHandler.ListClinics)
				clinicRoutes.POST("",
					mw.RequirePermission(authz.ActionWrite, authz.ResourceClinic),
					clinicHandler.CreateClinic)
				clinicRoutes.GET("/:id/members",
					mw.RequirePermission(authz.ActionRead, authz.ResourceClinic),
					clinicHandler.ListClinicMembers)
				clinicRoutes.POST("/:id/members",
					mw.RequirePermission(authz.ActionWrite, authz.ResourceClinic),
					clinicHandler.AddClinicMember)
				clinicRoutes.DELETE("/:id/members/:user_id",
					mw.RequirePermission(authz.ActionWrite, authz.ResourceClinic),
					clinicHandler.RemoveClinicMember)
			}

			userRoutes := portal.Group("/users")
			{
				userRoutes.GET("",
					mw.RequirePermission(authz.ActionRead, authz.ResourceUser),
					userHandler.ListUsers)
				userRoutes.POST("",
					mw.RequirePermission(authz.ActionWrite, authz.ResourceUser),
					userHandler.CreateUser)
				userRoutes.GET("/:id", userHandler.GetUser) // self or read:user, checked in service
				userRoutes.PATCH("/:id",
					mw.RequirePermission(authz.ActionWrite, authz.ResourceUser),
					userHandler.UpdateUser)

				userRoutes.GET("/:id/grants", clinicHandler.ListGrants)
				userRoutes.PUT("/:id/grants",
					mw.RequirePermission(authz.ActionWrite, authz.ResourceRole),
					clinicHandler.AssignRole)
				userRoutes.DELETE("/:id/grants/:app",
					mw.RequirePermission(authz.ActionWrite, authz.ResourceRole),
					clinicHandler.RevokeAppAccess)
			}

			roleRoutes := portal.Group("/roles")
			{
				roleRoutes.GET("",
					mw.RequirePermission(authz.ActionRead, authz.ResourceRole),
					roleHandler.ListRoles)
				roleRoutes.GET("/:id",
					mw.RequirePermission(authz.ActionRead, authz.ResourceRole),
					roleHandler.GetRole)
				// Catalog mutations are reserved to super-admins in the service
				roleRoutes.POST("", roleHandler.CreateRole)
				roleRoutes.PUT("/:id/permissions", roleHandler.SetRolePermissions)
				roleRoutes.DELETE("/:id", roleHandler.DeleteRole)
			}

			portal.POST("/tenants", userHandler.ProvisionTenant)
		}
	}

	return r
}

// requestLogger logs one line per request with logrus
func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(started).String(),
		})
		if userID := c.GetString(string(authz.ContextKeyUserID)); userID != "" {
			entry = entry.WithField("user_id", userID)
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("request failed")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Debug("request served")
		}
	}
}
