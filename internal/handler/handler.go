package handler

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"academy/internal/accounts"
	"academy/internal/attendance"
	"academy/internal/audit"
	"academy/internal/auth"
	"academy/internal/catalog"
	"academy/internal/config"
	"academy/internal/enrollment"
	"academy/internal/ratelimit"
	"academy/internal/store"
)

// AuditReader serves the admin audit view.
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]audit.Event, error)
}

// Handler wires every HTTP endpoint to the domain services.
type Handler struct {
	cfg        config.App
	accounts   *accounts.Service
	catalog    *catalog.Service
	enrollment *enrollment.Service
	attendance *attendance.Service
	auditLog   AuditReader
	sessions   auth.SessionStore
	db         *store.DB
	redis      *store.Redis
}

// New creates a handler. db and redis are only consulted by Healthz and
// may be nil in tests.
func New(cfg config.App, accountsSvc *accounts.Service, catalogSvc *catalog.Service,
	enrollmentSvc *enrollment.Service, attendanceSvc *attendance.Service,
	auditRepo AuditReader, sessions auth.SessionStore, db *store.DB, redis *store.Redis) *Handler {
	return &Handler{
		cfg:        cfg,
		accounts:   accountsSvc,
		catalog:    catalogSvc,
		enrollment: enrollmentSvc,
		attendance: attendanceSvc,
		auditLog:   auditRepo,
		sessions:   sessions,
		db:         db,
		redis:      redis,
	}
}

// Routes mounts every endpoint. The admin group nests inside the session
// group, so one middleware chain carries the whole authorization policy.
func (h *Handler) Routes(r *gin.Engine) {
	r.GET("/healthz", h.Healthz)

	r.GET("/courses", h.ListCourses)
	r.GET("/courses/featured", h.FeaturedCourses)
	r.GET("/courses/:id", h.GetCourse)
	r.GET("/teachers", h.ListTeachers)

	r.POST("/register", h.Register)
	r.POST("/login", h.Login)

	sessioned := r.Group("", auth.RequireSession(h.sessions, h.cfg.SessionSigningKey, h.cfg.SessionIssuer), auth.RequireCSRF())
	sessioned.POST("/logout", h.Logout)
	sessioned.GET("/dashboard", h.Dashboard)
	sessioned.GET("/attendance", h.MyAttendanceMonths)
	sessioned.GET("/attendance/:monthID", h.MyAttendanceEntries)
	sessioned.POST("/courses/enroll", h.Enroll)
	sessioned.POST("/account/password", h.ChangePassword)

	admin := sessioned.Group("/admin", auth.RequireRole(accounts.RoleAdmin))
	admin.GET("/overview", h.AdminOverview)

	admin.POST("/courses/create", h.CreateCourse)
	admin.POST("/courses/:id/edit", h.EditCourse)
	admin.POST("/courses/:id/delete", h.DeleteCourse)
	admin.GET("/courses/:id/students", h.Roster)
	admin.POST("/courses/:id/students", h.AddRosterMember)
	admin.POST("/courses/:id/students/:sid/delete", h.RemoveRosterMember)

	admin.POST("/teachers/create", h.CreateTeacher)
	admin.POST("/teachers/:id/edit", h.EditTeacher)
	admin.POST("/teachers/:id/delete", h.DeleteTeacher)

	admin.GET("/enrollments", h.ListEnrollments)
	admin.POST("/enrollments/:id/approve", h.ApproveEnrollment)
	admin.POST("/enrollments/:id/reject", h.RejectEnrollment)

	admin.POST("/attendance/months", h.CreateMonth)
	admin.POST("/attendance/months/:id/delete", h.DeleteMonth)
	admin.GET("/attendance/months/:id", h.MonthMatrix)
	admin.GET("/attendance/months/:id/students/:studentID", h.StudentEntries)
	admin.POST("/attendance/months/:id/students/:studentID", h.RecordEntries)
	admin.POST("/attendance/toggle", h.ToggleEntry)

	admin.GET("/users", h.ListUsers)
	admin.POST("/users/:id/delete", h.DeleteUser)

	admin.GET("/audit", h.AuditTrail)
}

// Healthz reports datastore connectivity.
func (h *Handler) Healthz(c *gin.Context) {
	dbHealthy := h.db.Healthy(c.Request.Context())
	redisHealthy := h.redis.Healthy(c.Request.Context())
	status := http.StatusOK
	if !dbHealthy || !redisHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": "ok", "db": dbHealthy, "redis": redisHealthy})
}

// fail translates domain errors to status codes. Anything outside the
// taxonomy is logged and reported as a bare 500.
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("handler: %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, accounts.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, accounts.ErrAccountDisabled),
		errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, accounts.ErrDuplicateUsername),
		errors.Is(err, accounts.ErrSelfDeletion),
		errors.Is(err, enrollment.ErrDuplicatePending),
		errors.Is(err, enrollment.ErrInvalidTransition),
		errors.Is(err, enrollment.ErrCourseFull),
		errors.Is(err, enrollment.ErrAlreadyJoined),
		errors.Is(err, catalog.ErrTeacherInUse):
		return http.StatusConflict
	case errors.Is(err, accounts.ErrInvalidUsername),
		errors.Is(err, accounts.ErrWeakPassword),
		errors.Is(err, catalog.ErrMissingFields),
		errors.Is(err, catalog.ErrInvalidPrice),
		errors.Is(err, catalog.ErrInvalidQuery),
		errors.Is(err, catalog.ErrTeacherNotFound),
		errors.Is(err, enrollment.ErrInvalidContact),
		errors.Is(err, enrollment.ErrInvalidPhone),
		errors.Is(err, attendance.ErrInvalidMonth),
		errors.Is(err, attendance.ErrInvalidEntry):
		return http.StatusBadRequest
	case errors.Is(err, enrollment.ErrInvalidCourse),
		errors.Is(err, enrollment.ErrNotFound),
		errors.Is(err, accounts.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, attendance.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
