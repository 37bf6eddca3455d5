// Package main runs the seminar series HTTP server with the in-process email worker and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/seminar-hub/backend/config"
	"github.com/seminar-hub/backend/internal/auth"
	"github.com/seminar-hub/backend/internal/dashboard"
	"github.com/seminar-hub/backend/internal/emaillogs"
	"github.com/seminar-hub/backend/internal/events"
	"github.com/seminar-hub/backend/internal/mailer"
	"github.com/seminar-hub/backend/internal/middleware"
	"github.com/seminar-hub/backend/internal/models"
	"github.com/seminar-hub/backend/internal/notify"
	"github.com/seminar-hub/backend/internal/ratelimit"
	"github.com/seminar-hub/backend/internal/registrations"
	"github.com/seminar-hub/backend/internal/settings"
	"github.com/seminar-hub/backend/internal/submissions"
	"github.com/seminar-hub/backend/internal/uploads"
	"github.com/seminar-hub/backend/internal/worker"
	"github.com/seminar-hub/backend/internal/zoom"
	"github.com/seminar-hub/backend/pkg/database"
	"github.com/seminar-hub/backend/pkg/queue"
	"github.com/seminar-hub/backend/pkg/redis"
	"github.com/seminar-hub/backend/pkg/response"
	"github.com/seminar-hub/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			PapersBucket:         cfg.AWS.PapersBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		}
	}

	// Email: handlers enqueue, the worker sends and logs.
	sender := newSender(cfg, logger)
	sendTimeout := time.Duration(cfg.Email.SendTimeoutSec) * time.Second
	jobQueue := queue.NewQueue(rdb.Client, logger)
	notifier := notify.NewQueueNotifier(jobQueue)
	composer := mailer.NewComposer(cfg.Site.Name, cfg.Site.PublicURL)
	emailLogsRepo := emaillogs.NewRepository(pool)
	emailProcessor := worker.NewEmailProcessor(jobQueue, sender, emailLogsRepo, sendTimeout, logger)

	// Settings
	settingsSvc := settings.NewService(settings.NewRepository(pool), models.Settings{
		SiteName:        cfg.Site.Name,
		SubmissionsOpen: true,
	}, logger)
	settingsHandler := settings.NewHandler(settingsSvc, logger)

	// Submissions
	submissionRepo := submissions.NewRepository(pool)
	submissionCfg := submissions.Config{
		Store:           submissionRepo,
		Settings:        settingsSvc,
		Composer:        composer,
		Notifier:        notifier,
		AdminRecipients: adminRecipients(cfg),
		Logger:          logger,
	}
	if s3Client != nil {
		submissionCfg.Presigner = s3Client
	}
	submissionSvc := submissions.NewService(submissionCfg)
	submissionHandler := submissions.NewHandler(submissionSvc, logger)

	// Registrations
	registrationRepo := registrations.NewRepository(pool)
	registrationHandler := registrations.NewHandler(registrations.NewService(registrationRepo, logger), logger)

	// Events and Zoom
	eventRepo := events.NewRepository(pool)
	eventCfg := events.Config{
		Store:       eventRepo,
		Recipients:  registrationRepo,
		Sender:      sender,
		Recorder:    emailLogsRepo,
		Notifier:    notifier,
		Composer:    composer,
		SendTimeout: sendTimeout,
		Logger:      logger,
	}
	if cfg.Zoom.Enabled() {
		eventCfg.Meetings = zoom.NewClient(zoom.Config{
			AccountID:    cfg.Zoom.AccountID,
			ClientID:     cfg.Zoom.ClientID,
			ClientSecret: cfg.Zoom.ClientSecret,
			APIBaseURL:   cfg.Zoom.APIBaseURL,
			TokenURL:     cfg.Zoom.TokenURL,
		}, logger)
	} else {
		logger.Info("zoom api disabled (ZOOM_ACCOUNT_ID/ZOOM_CLIENT_ID/ZOOM_CLIENT_SECRET not set)")
	}
	eventSvc := events.NewService(eventCfg)
	eventHandler := events.NewHandler(eventSvc, submissionSvc, logger)
	zoomWebhook := zoom.NewWebhookHandler(cfg.Zoom.WebhookSecret, eventSvc, logger)

	// Auth
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authSvc := auth.NewService(auth.Config{
		Users:     auth.NewRepository(pool),
		Tokens:    auth.NewMagicLinks(rdb.Client),
		JWT:       jwtService,
		Composer:  composer,
		Notifier:  notifier,
		VerifyURL: cfg.Site.APIURL + "/auth/magic-link/verify",
		Logger:    logger,
	})
	if err := authSvc.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password, cfg.Admin.FullName); err != nil {
		logger.Fatal("bootstrap admin", zap.Error(err))
	}
	authHandler := auth.NewHandler(authSvc, auth.CookieConfig{Name: cfg.JWT.CookieName, Secure: cfg.JWT.CookieSecure}, logger)

	// Uploads
	var paperStore uploads.PaperStore
	if s3Client != nil {
		paperStore = s3Client
	}
	uploadHandler := uploads.NewHandler(paperStore, logger)

	dashboardHandler := dashboard.NewHandler(submissionRepo, eventRepo, registrationRepo, emailLogsRepo, logger)
	emailLogsHandler := emaillogs.NewHandler(emailLogsRepo)

	limiter := ratelimit.NewRedis(rdb.Client, "ratelimit", cfg.RateLimit.Limit, cfg.RateLimit.Window())
	limit := func(scope string) gin.HandlerFunc { return ratelimit.Middleware(limiter, scope, logger) }

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", health(pool, rdb, jobQueue))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	router.POST("/submissions", limit("submissions"), submissionHandler.Create)
	router.POST("/registrations", limit("registrations"), registrationHandler.Register)
	router.POST("/uploads/papers", limit("uploads"), uploadHandler.Paper)
	router.GET("/public/events", eventHandler.ListPublic)
	router.GET("/public/events/:id", eventHandler.GetPublic)
	router.GET("/settings", settingsHandler.Get)
	router.POST("/webhooks/zoom", zoomWebhook.Handle)

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", limit("login"), authHandler.Login)
		authGroup.POST("/magic-link", limit("magic-link"), authHandler.RequestMagicLink)
		authGroup.GET("/magic-link/verify", authHandler.VerifyMagicLink)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.GET("/me", middleware.Session(jwtService, cfg.JWT.CookieName), authHandler.Me)
	}

	// Admin (session required)
	admin := router.Group("")
	admin.Use(middleware.Session(jwtService, cfg.JWT.CookieName), middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/submissions", submissionHandler.List)
		admin.GET("/submissions/:id", submissionHandler.Get)
		admin.PATCH("/submissions/:id", submissionHandler.UpdateStatus)
		admin.GET("/submissions/:id/paper-url", submissionHandler.PaperURL)

		admin.POST("/events", eventHandler.Create)
		admin.GET("/events", eventHandler.List)
		admin.GET("/events/:id", eventHandler.Get)
		admin.PATCH("/events/:id", eventHandler.Update)
		admin.POST("/events/:id/notify", eventHandler.Notify)
		admin.POST("/events/:id/zoom", eventHandler.CreateZoom)
		admin.GET("/events/:id/emails", emailLogsHandler.ListByEvent)

		admin.GET("/registrations", registrationHandler.List)
		admin.PATCH("/settings", settingsHandler.Update)
		admin.GET("/emails", emailLogsHandler.List)
		admin.GET("/dashboard", dashboardHandler.Get)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		emailProcessor.Run(workerCtx)
	}()
	logger.Info("email worker started")

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	workerCancel()
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logger.Warn("email worker did not stop in time")
	}
	logger.Info("server stopped")
}

func newSender(cfg *config.Config, logger *zap.Logger) mailer.Sender {
	if cfg.Email.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set; emails are logged, not sent")
		return mailer.NewLogSender(logger)
	}
	return mailer.NewSMTP(mailer.SMTPConfig{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		User:     cfg.Email.SMTPUser,
		Pass:     cfg.Email.SMTPPass,
		From:     cfg.Email.FromAddress,
		FromName: cfg.Email.FromName,
	}, logger)
}

// adminRecipients falls back to the bootstrap admin when no alert list is configured.
func adminRecipients(cfg *config.Config) []string {
	if len(cfg.Admin.NotificationEmails) > 0 {
		return cfg.Admin.NotificationEmails
	}
	if cfg.Admin.Email != "" {
		return []string{cfg.Admin.Email}
	}
	return nil
}

func health(pool *pgxpool.Pool, rdb *redis.Client, jobs *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		dbOK := pool.Ping(ctx) == nil
		redisOK := rdb.Healthy(ctx)
		status := gin.H{"database": dbOK, "redis": redisOK}
		if redisOK {
			if depths, err := jobs.Depths(ctx); err == nil {
				status["email_queue"] = depths
			}
		}
		if !dbOK || !redisOK {
			c.JSON(http.StatusServiceUnavailable, response.Body{Success: false, Message: "degraded", Data: status})
			return
		}
		response.OK(c, status)
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
