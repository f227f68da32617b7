// Package router assembles the gin engine: global middleware, public endpoints and the
// authenticated API grouped per resource.
package router

import (
	"context"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/school-suite-api/internal/handler"
	"github.com/noah-isme/school-suite-api/internal/middleware"
	"github.com/noah-isme/school-suite-api/internal/models"
	"github.com/noah-isme/school-suite-api/internal/service"
	"github.com/noah-isme/school-suite-api/pkg/config"
	"github.com/noah-isme/school-suite-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/school-suite-api/pkg/middleware/cors"
	"github.com/noah-isme/school-suite-api/pkg/middleware/ratelimit"
	reqidmiddleware "github.com/noah-isme/school-suite-api/pkg/middleware/requestid"
)

// Handlers groups every HTTP handler mounted by the router.
type Handlers struct {
	Auth         *handler.AuthHandler
	Users        *handler.UserHandler
	Permissions  *handler.PermissionHandler
	Academic     *handler.AcademicHandler
	Students     *handler.StudentHandler
	Enrollments  *handler.EnrollmentHandler
	Periods      *handler.PeriodHandler
	Events       *handler.EventHandler
	Announcement *handler.AnnouncementHandler
	Payments     *handler.PaymentHandler
	Documents    *handler.DocumentHandler
	Grades       *handler.GradeHandler
	Attendance   *handler.AttendanceHandler
	Dashboard    *handler.DashboardHandler
	Metrics      *handler.MetricsHandler
}

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

type permissionResolver interface {
	Effective(ctx context.Context, userID string) (*models.EffectivePermissions, bool, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Dependencies are the cross-cutting collaborators of the middleware chain.
type Dependencies struct {
	Tokens        tokenValidator
	Permissions   permissionResolver
	Audit         auditWriter
	Metrics       *service.MetricsService
	VerifyLimiter *ratelimit.Limiter
	Logger        *zap.Logger
}

// New builds the engine. Metrics and the verify limiter are optional.
func New(cfg *config.Config, h Handlers, deps Dependencies) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(log))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	if cfg.Metrics.Enabled {
		r.GET("/metrics", h.Metrics.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	verify := []gin.HandlerFunc{}
	if deps.VerifyLimiter != nil {
		verify = append(verify, deps.VerifyLimiter.Middleware())
	}
	api.GET("/verify/:code", append(verify, h.Documents.Verify)...)
	api.GET("/documents/download", h.Documents.Download)
	api.POST("/payments/midtrans/notify", h.Payments.Notify)

	auth := api.Group("/auth")
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.Tokens))

	account := secured.Group("/auth")
	account.POST("/logout", h.Auth.Logout)
	account.GET("/me", h.Auth.Me)
	account.POST("/change-password", h.Auth.ChangePassword)

	scoped := secured.Group("")
	scoped.Use(middleware.Tenant())

	rt := routes{group: scoped, deps: deps, logger: log}
	rt.users(h)
	rt.academic(h)
	rt.students(h)
	rt.enrollments(h)
	rt.calendar(h)
	rt.payments(h)
	rt.documents(h)
	rt.records(h)
	rt.dashboard(h)

	return r
}

type routes struct {
	group  *gin.RouterGroup
	deps   Dependencies
	logger *zap.Logger
}

func (rt routes) require(p models.Permission) gin.HandlerFunc {
	return middleware.RequirePermission(rt.deps.Permissions, p, rt.logger)
}

func (rt routes) audit(resource string) gin.HandlerFunc {
	return middleware.Audit(rt.deps.Audit, resource, rt.logger)
}

func (rt routes) users(h Handlers) {
	rt.group.GET("/permissions", h.Permissions.Catalogue)
	rt.group.GET("/permissions/me", h.Permissions.Mine)

	users := rt.group.Group("/users", rt.require(models.PermUsersManage), rt.audit("users"))
	users.GET("", h.Users.List)
	users.POST("", h.Users.Create)
	users.GET("/:id", h.Users.Get)
	users.PUT("/:id", h.Users.Update)
	users.DELETE("/:id", h.Users.Delete)
	users.GET("/:id/permissions", h.Permissions.ListUser)
	users.PUT("/:id/permissions", h.Permissions.SetUser)
	users.DELETE("/:id/permissions/:permission", h.Permissions.ClearUser)
	users.GET("/:id/permissions/effective", h.Permissions.UserEffective)

	roles := rt.group.Group("/roles", middleware.RequireRoles(models.RoleSuperAdmin), rt.audit("role_permissions"))
	roles.GET("/:role/permissions", h.Permissions.ListRole)
	roles.PUT("/:role/permissions/:permission", h.Permissions.GrantRole)
	roles.DELETE("/:role/permissions/:permission", h.Permissions.RevokeRole)
}

func (rt routes) academic(h Handlers) {
	manage := rt.require(models.PermAcademicManage)

	institutions := rt.group.Group("/institutions", rt.audit("institutions"))
	institutions.GET("", h.Academic.ListInstitutions)
	institutions.GET("/:id", h.Academic.GetInstitution)
	institutions.POST("", middleware.RequireRoles(models.RoleSuperAdmin), h.Academic.CreateInstitution)
	institutions.PUT("/:id", manage, h.Academic.UpdateInstitution)
	institutions.POST("/:id/logo", manage, h.Academic.UploadLogo)

	levels := rt.group.Group("/levels", rt.audit("levels"))
	levels.GET("", h.Academic.ListLevels)
	levels.POST("", manage, h.Academic.CreateLevel)
	levels.PUT("/:id", manage, h.Academic.UpdateLevel)
	levels.DELETE("/:id", manage, h.Academic.DeleteLevel)
	levels.GET("/:id/grades", h.Academic.ListGradeLevels)

	grades := rt.group.Group("/grade-levels", manage, rt.audit("grade_levels"))
	grades.POST("", h.Academic.CreateGradeLevel)
	grades.DELETE("/:id", h.Academic.DeleteGradeLevel)

	areas := rt.group.Group("/areas", rt.audit("areas"))
	areas.GET("", h.Academic.ListAreas)
	areas.POST("", manage, h.Academic.CreateArea)
	areas.DELETE("/:id", manage, h.Academic.DeleteArea)

	assignments := rt.group.Group("/level-assignments", rt.audit("level_assignments"))
	assignments.GET("", h.Academic.ListLevelAssignments)
	assignments.GET("/:id", h.Academic.GetLevelAssignment)
	assignments.POST("", manage, h.Academic.CreateLevelAssignment)
	assignments.PUT("/:id", manage, h.Academic.UpdateLevelAssignment)
	assignments.DELETE("/:id", manage, h.Academic.DeleteLevelAssignment)
	assignments.GET("/:id/courses", h.Academic.ApplicableCourses)
	assignments.GET("/:id/roster", rt.require(models.PermReportsView), h.Enrollments.ExportRoster)

	courses := rt.group.Group("/courses", rt.audit("courses"))
	courses.GET("", h.Academic.ListCourses)
	courses.GET("/:id", h.Academic.GetCourse)
	courses.POST("", manage, h.Academic.CreateCourse)
	courses.PUT("/:id", manage, h.Academic.UpdateCourse)
	courses.DELETE("/:id", manage, h.Academic.DeleteCourse)
}

func (rt routes) students(h Handlers) {
	students := rt.group.Group("/students", rt.require(models.PermStudentsManage), rt.audit("students"))
	students.GET("", h.Students.List)
	students.POST("", h.Students.Create)
	students.GET("/:id", h.Students.Get)
	students.PUT("/:id", h.Students.Update)
	students.DELETE("/:id", h.Students.Delete)
}

func (rt routes) enrollments(h Handlers) {
	enrollments := rt.group.Group("/enrollments", rt.audit("enrollments"))
	manage := rt.require(models.PermEnrollmentsManage)
	enrollments.GET("", manage, h.Enrollments.List)
	enrollments.POST("", manage, h.Enrollments.Create)
	enrollments.GET("/:id", manage, h.Enrollments.Get)
	enrollments.PUT("/:id", manage, h.Enrollments.Update)
	enrollments.DELETE("/:id", manage, h.Enrollments.Delete)

	enrollments.GET("/:id/report-card", rt.require(models.PermReportsView), h.Grades.ReportCard)
	enrollments.GET("/:id/attendance", rt.require(models.PermReportsView), h.Attendance.History)
	enrollments.GET("/:id/attendance/summary", rt.require(models.PermReportsView), h.Attendance.Summary)
}

func (rt routes) calendar(h Handlers) {
	periods := rt.group.Group("/periods", rt.audit("periods"))
	managePeriods := rt.require(models.PermPeriodsManage)
	periods.GET("", h.Periods.List)
	periods.GET("/current", h.Periods.Current)
	periods.GET("/:id", h.Periods.Get)
	periods.POST("", managePeriods, h.Periods.Create)
	periods.PUT("/:id", managePeriods, h.Periods.Update)
	periods.POST("/:id/activate", managePeriods, h.Periods.Activate)
	periods.DELETE("/:id", managePeriods, h.Periods.Delete)

	events := rt.group.Group("/events", rt.audit("events"))
	manageEvents := rt.require(models.PermEventsManage)
	events.GET("", h.Events.List)
	events.GET("/:id", h.Events.Get)
	events.POST("", manageEvents, h.Events.Create)
	events.PUT("/:id", manageEvents, h.Events.Update)
	events.DELETE("/:id", manageEvents, h.Events.Delete)

	announcements := rt.group.Group("/announcements", rt.audit("announcements"))
	manageAnnouncements := rt.require(models.PermAnnouncementsManage)
	announcements.GET("", h.Announcement.List)
	announcements.GET("/:id", h.Announcement.Get)
	announcements.POST("", manageAnnouncements, h.Announcement.Create)
	announcements.PUT("/:id", manageAnnouncements, h.Announcement.Update)
	announcements.DELETE("/:id", manageAnnouncements, h.Announcement.Delete)
}

func (rt routes) payments(h Handlers) {
	view := rt.require(models.PermPaymentsView)
	manage := rt.require(models.PermPaymentsManage)

	invoices := rt.group.Group("/invoices", rt.audit("invoices"))
	invoices.GET("", view, h.Payments.List)
	invoices.GET("/:id", view, h.Payments.Get)
	invoices.POST("", manage, h.Payments.Create)
	invoices.POST("/:id/cancel", manage, h.Payments.Cancel)
	invoices.POST("/:id/payments", manage, h.Payments.RecordPayment)
	invoices.POST("/:id/checkout", view, h.Payments.Checkout)

	rt.group.GET("/payments/stats", view, h.Payments.Stats)
}

func (rt routes) documents(h Handlers) {
	documents := rt.group.Group("/documents", rt.require(models.PermDocumentsIssue), rt.audit("documents"))
	documents.GET("", h.Documents.List)
	documents.POST("", h.Documents.Issue)
	documents.GET("/:id", h.Documents.Get)
	documents.POST("/:id/revoke", h.Documents.Revoke)
	documents.GET("/:id/download-url", h.Documents.DownloadURL)
}

func (rt routes) records(h Handlers) {
	rt.group.POST("/grades", rt.require(models.PermGradesRecord), rt.audit("grades"), h.Grades.Record)
	rt.group.POST("/attendance", rt.require(models.PermAttendanceRecord), rt.audit("attendance"), h.Attendance.Record)
}

func (rt routes) dashboard(h Handlers) {
	dashboard := rt.group.Group("/dashboard", rt.require(models.PermReportsView))
	dashboard.GET("", h.Dashboard.Summary)
	dashboard.GET("/system", middleware.RequireRoles(models.RoleSuperAdmin), h.Dashboard.System)
}
