package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/school-suite-api/internal/handler"
	"github.com/noah-isme/school-suite-api/internal/repository"
	"github.com/noah-isme/school-suite-api/internal/router"
	"github.com/noah-isme/school-suite-api/internal/service"
	"github.com/noah-isme/school-suite-api/pkg/cache"
	"github.com/noah-isme/school-suite-api/pkg/database"
	"github.com/noah-isme/school-suite-api/pkg/jobs"
	"github.com/noah-isme/school-suite-api/pkg/middleware/ratelimit"
	"github.com/noah-isme/school-suite-api/pkg/storage"
)

const (
	shutdownTimeout    = 15 * time.Second
	scheduledTaskLimit = 5 * time.Minute
	limiterSweepSpec   = "@every 10m"
)

func newServeCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with its background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), rt)
		},
	}
}

func serve(ctx context.Context, rt *runtime) error {
	cfg, logr := rt.cfg, rt.logger

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}
	cacheSvc, closeCache := openCache(rt, metrics)
	defer closeCache()

	files, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		return fmt.Errorf("init document storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)
	validate := service.NewValidator()

	queue := jobs.NewQueue("documents", jobs.QueueConfig{
		Workers:    cfg.Documents.Workers,
		MaxRetries: cfg.Documents.WorkerRetries,
		Logger:     logr,
	})

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	assignmentRepo := repository.NewLevelAssignmentRepository(db)
	periodRepo := repository.NewPeriodRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "school-suite-api",
	})
	permissionSvc := service.NewPermissionService(repository.NewPermissionRepository(db), userRepo, cacheSvc, cfg.Cache.PermissionsTTL, logr)
	userSvc := service.NewUserService(userRepo, permissionSvc, validate, logr)
	academicSvc := service.NewAcademicService(
		repository.NewInstitutionRepository(db),
		repository.NewAcademicRepository(db),
		assignmentRepo,
		repository.NewCourseRepository(db),
		enrollmentRepo,
		files,
		validate,
		logr,
		cfg.Documents.LogoMaxDimension,
	)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(
		enrollmentRepo,
		assignmentRepo,
		studentRepo,
		repository.NewEnrollmentTransactor(db),
		cacheSvc,
		metrics,
		validate,
		logr,
		service.EnrollmentServiceConfig{ListCacheTTL: cfg.Cache.EnrollmentTTL},
	)
	paymentSvc := service.NewPaymentService(
		repository.NewInvoiceRepository(db),
		studentRepo,
		paymentGateway(rt),
		cacheSvc,
		metrics,
		validate,
		logr,
		service.PaymentServiceConfig{Currency: cfg.Payments.Currency},
	)
	documentSvc := service.NewDocumentService(
		repository.NewDocumentRepository(db),
		studentRepo,
		files,
		queue,
		nil,
		signer,
		metrics,
		validate,
		logr,
		service.DocumentServiceConfig{
			CodeGroups:      cfg.Documents.CodeGroups,
			VerifyBaseURL:   cfg.PublicBaseURL + cfg.APIPrefix + "/verify",
			DownloadBaseURL: cfg.PublicBaseURL + cfg.APIPrefix + "/documents/download",
		},
	)
	documentSvc.RegisterJobs(queue)
	dashboardSvc := service.NewDashboardService(repository.NewDashboardRepository(db), cacheSvc, metrics, logr,
		service.DashboardServiceConfig{CacheTTL: cfg.Cache.DashboardTTL})

	limiter := ratelimit.New(cfg.RateLimit.VerifyRPS, cfg.RateLimit.VerifyBurst, logr).OnReject(metrics.RecordRateLimited)

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if cacheSvc.Enabled() {
		checks["redis"] = cacheSvc.Ping
	}

	engine := router.New(cfg, router.Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		Users:        handler.NewUserHandler(userSvc),
		Permissions:  handler.NewPermissionHandler(permissionSvc, userSvc),
		Academic:     handler.NewAcademicHandler(academicSvc),
		Students:     handler.NewStudentHandler(studentSvc),
		Enrollments:  handler.NewEnrollmentHandler(enrollmentSvc, academicSvc),
		Periods:      handler.NewPeriodHandler(service.NewPeriodService(periodRepo, validate, logr)),
		Events:       handler.NewEventHandler(service.NewEventService(repository.NewEventRepository(db), validate, logr)),
		Announcement: handler.NewAnnouncementHandler(service.NewAnnouncementService(repository.NewAnnouncementRepository(db), validate, logr)),
		Payments:     handler.NewPaymentHandler(paymentSvc),
		Documents:    handler.NewDocumentHandler(documentSvc),
		Grades:       handler.NewGradeHandler(service.NewGradeService(repository.NewGradeRepository(db), enrollmentRepo, periodRepo, validate, logr)),
		Attendance:   handler.NewAttendanceHandler(service.NewAttendanceService(repository.NewAttendanceRepository(db), enrollmentRepo, validate, logr)),
		Dashboard:    handler.NewDashboardHandler(dashboardSvc),
		Metrics:      handler.NewMetricsHandler(metrics, checks),
	}, router.Dependencies{
		Tokens:        authSvc,
		Permissions:   permissionSvc,
		Audit:         userRepo,
		Metrics:       metrics,
		VerifyLimiter: limiter,
		Logger:        logr,
	})

	scheduler := jobs.NewScheduler(logr, scheduledTaskLimit)
	if err := scheduler.Add("overdue-invoices", cfg.Payments.OverdueSweepSpec, func(ctx context.Context) error {
		_, err := paymentSvc.SweepOverdue(ctx)
		return err
	}); err != nil {
		return err
	}
	if err := scheduler.Add("verify-limiter-sweep", limiterSweepSpec, func(context.Context) error {
		limiter.Sweep()
		return nil
	}); err != nil {
		return err
	}

	queue.Start(ctx)
	defer queue.Stop()
	scheduler.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logr.Info("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
		return srv.Close()
	}
	logr.Info("server stopped")
	return nil
}

// openCache connects redis when caching is enabled. A failed connection degrades to an uncached
// service instead of aborting startup.
func openCache(rt *runtime, metrics *service.MetricsService) (*service.CacheService, func()) {
	noop := func() {}
	if !rt.cfg.Cache.Enabled {
		return service.NewCacheService(nil, metrics, rt.cfg.Cache.DefaultTTL, rt.logger, false), noop
	}
	client, err := cache.NewRedis(rt.cfg.Redis)
	if err != nil {
		rt.logger.Warn("redis unavailable, caching disabled", zap.Error(err))
		return service.NewCacheService(nil, metrics, rt.cfg.Cache.DefaultTTL, rt.logger, false), noop
	}
	repo := repository.NewCacheRepository(client, rt.logger)
	closeFn := func() {
		if err := repo.Close(); err != nil {
			rt.logger.Warn("close redis", zap.Error(err))
		}
	}
	return service.NewCacheService(repo, metrics, rt.cfg.Cache.DefaultTTL, rt.logger, true), closeFn
}

func paymentGateway(rt *runtime) service.CheckoutGateway {
	if !rt.cfg.Payments.GatewayEnabled() {
		rt.logger.Info("midtrans server key not set, online checkout disabled")
		return nil
	}
	return service.NewMidtransGateway(rt.cfg.Payments.MidtransServerKey, rt.cfg.Payments.MidtransProduction)
}
