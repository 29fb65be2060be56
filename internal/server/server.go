// Package server contains the HTTP handlers for the doubt board API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"doubtdesk/internal/cache"
	"doubtdesk/internal/config"
	"doubtdesk/internal/database"
	"doubtdesk/internal/featureflags"
	"doubtdesk/internal/inference"
	"doubtdesk/internal/middleware"
	"doubtdesk/internal/models"
	"doubtdesk/internal/observability"
	"doubtdesk/internal/repository"
	"doubtdesk/internal/scoring"
	"doubtdesk/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"gorm.io/gorm"
)

// aiRequestsPerMinute caps inference-backed requests per user.
const aiRequestsPerMinute = 20

// Server holds all dependencies and provides handlers
type Server struct {
	config          *config.Config
	db              *gorm.DB
	cache           *cache.Cache
	app             *fiber.App
	promMiddleware  *fiberprometheus.FiberPrometheus
	repo            *repository.Store
	auth            *middleware.Auth
	featureFlags    *featureflags.Manager
	inference       *inference.Client
	contentService  *service.ContentService
	feedbackService *service.FeedbackService
	queryService    *service.QueryService
}

// NewServer connects to the database and cache described by cfg and returns
// a server wired to them.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	c := cache.Connect(cfg.RedisURL)
	if !c.Enabled() {
		observability.Logger.Warn("redis unavailable, caching disabled")
	}

	return NewServerWithDeps(cfg, db, c, inference.NewFromConfig(cfg))
}

// NewServerWithDeps builds a server from already-open dependencies. c and ai
// may be nil; a nil ai leaves scoring on the fallback strategy and
// translation unavailable.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, c *cache.Cache, ai *inference.Client) (*Server, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if ai == nil {
		ai = inference.New(inference.Options{})
	}

	store := repository.NewStore(db, c)
	flags := featureflags.NewManager(cfg.FeatureFlags)

	var primary scoring.Strategy
	if ai.Configured() {
		primary = scoring.NewAIStrategy(ai)
	}
	engine := scoring.NewEngine(primary,
		scoring.WithFlags(flags),
		scoring.WithTimeout(cfg.ScoringTimeout()),
	)

	return &Server{
		config:          cfg,
		db:              db,
		cache:           c,
		promMiddleware:  middleware.InitMetrics("doubtdesk-api"),
		repo:            store,
		auth:            middleware.NewAuth(cfg.JWTSecret, store),
		featureFlags:    flags,
		inference:       ai,
		contentService:  service.NewContentService(store),
		feedbackService: service.NewFeedbackService(store, engine),
		queryService:    service.NewQueryService(store, c),
	}, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())

	// Propagates request, trace and correlation ids into the request context.
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, " + middleware.CorrelationIDHeader,
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	if s.config.Env == "test" {
		return
	}

	// 100 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/metrics", middleware.MetricsHandler())

	api := app.Group("/api", s.auth.AuthRequired())
	admin := middleware.RequireAdmin()

	api.Get("/features", s.GetFeatureFlags)
	api.Get("/leaderboard", s.GetLeaderboard)

	users := api.Group("/users")
	users.Get("/", s.ListUsers)
	users.Post("/", admin, s.CreateUser)
	users.Get("/:id", s.GetUser)
	users.Get("/:id/stats", s.GetUserStats)
	users.Patch("/:id/name", s.RenameUser)
	users.Patch("/:id/access", admin, s.SetUserAccess)

	doubts := api.Group("/doubts")
	doubts.Get("/", s.ListDoubts)
	doubts.Post("/", s.CreateDoubt)
	doubts.Get("/:id", s.GetDoubt)
	doubts.Delete("/:id", admin, s.DeleteDoubt)
	doubts.Get("/:id/answers", s.ListDoubtAnswers)
	doubts.Post("/:id/answers", s.CreateAnswer)

	answers := api.Group("/answers")
	answers.Get("/", s.ListAnswers)
	answers.Post("/:id/feedback", s.aiRateLimit("feedback"), s.SubmitFeedback)

	api.Post("/translate", s.aiRateLimit("translate"), s.Translate)
}

// aiRateLimit throttles routes that may call the inference service, per user.
// Without Redis the limit is not enforced.
func (s *Server) aiRateLimit(resource string) fiber.Handler {
	if !s.cache.Enabled() {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return middleware.RateLimit(s.cache, resource, aiRequestsPerMinute, time.Minute, middleware.FailOpen)
}

// NewApp returns a Fiber app with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "DoubtDesk API",
		ErrorHandler: errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	observability.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional, so an
// unreachable cache degrades but does not fail readiness.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := s.repo.Ping(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.cache.Enabled() {
		redisStatus = "healthy"
		if err := s.cache.Ping(ctx); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	} else if redisStatus == "unhealthy" {
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start starts the server
func (s *Server) Start() error {
	s.app = s.NewApp()
	observability.Logger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			observability.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			observability.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if err := s.cache.Close(); err != nil {
		observability.Logger.Error("error closing redis", slog.String("error", err.Error()))
	}

	observability.Logger.Info("server shutdown complete")
	return nil
}
