package api

import (
	"context"
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/developer-mesh/style-guide-service/pkg/auth"
	"github.com/developer-mesh/style-guide-service/pkg/config"
	"github.com/developer-mesh/style-guide-service/pkg/models"
	"github.com/developer-mesh/style-guide-service/pkg/observability"
	"github.com/developer-mesh/style-guide-service/pkg/schema"
	"github.com/developer-mesh/style-guide-service/pkg/services"
)

// ProfileAPI is the profile service as used by the handlers
type ProfileAPI interface {
	Get(ctx context.Context) (*models.UserProfile, error)
	Update(ctx context.Context, body []byte) (*models.UserProfile, error)
}

// SampleAPI is the sample service as used by the handlers
type SampleAPI interface {
	Create(ctx context.Context, in models.NewSample) (*models.Sample, error)
	Get(ctx context.Context, id string) (*models.Sample, error)
	Metadata(ctx context.Context, id string) ([]*models.Metadata, error)
	List(ctx context.Context, limit int) ([]*models.Sample, error)
	Update(ctx context.Context, id string, patch models.SamplePatch) (*models.Sample, error)
	Delete(ctx context.Context, id string) error
}

// MaintenanceAPI is the maintenance service as used by the handlers
type MaintenanceAPI interface {
	Provision(ctx context.Context) (*schema.ProvisionReport, error)
	MigrateEmbeddings(ctx context.Context, dimension int) (*schema.MigrationReport, error)
	ReembedAll(ctx context.Context) (*services.ReembedReport, error)
	CheckSchema(ctx context.Context) (*services.SchemaStatus, error)
	CreateTestUser(ctx context.Context) (*models.UserProfile, bool, error)
	TestEmbedding(ctx context.Context) (*services.EmbeddingSample, error)
}

// Services groups the handlers' dependencies
type Services struct {
	Profiles    ProfileAPI
	Samples     SampleAPI
	Maintenance MaintenanceAPI
}

// Options configures the server beyond the listener settings
type Options struct {
	Version string
	// ExposeInternalErrors includes internal causes in error payloads
	ExposeInternalErrors bool
	Logger               observability.Logger
	Metrics              observability.MetricsClient
	// MetricsHandler serves /metrics when set
	MetricsHandler http.Handler
	Health         *HealthChecker
}

// Server represents the API server
type Server struct {
	router         *gin.Engine
	server         *http.Server
	config         config.APIConfig
	gateway        *auth.Gateway
	services       Services
	health         *HealthChecker
	metricsHandler http.Handler
	exposeInternal bool
	logger         observability.Logger
	metrics        observability.MetricsClient
	pages          *template.Template
}

// NewServer creates a new API server
func NewServer(cfg config.APIConfig, gateway *auth.Gateway, svc Services, opts Options) (*Server, error) {
	if gateway == nil {
		return nil, errors.New("auth gateway is required")
	}
	if svc.Profiles == nil || svc.Samples == nil || svc.Maintenance == nil {
		return nil, errors.New("profile, sample and maintenance services are required")
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewNoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewNoopMetricsClient()
	}
	if opts.Health == nil {
		opts.Health = NewHealthChecker(opts.Version)
	}

	pages, err := parsePages()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger.WithPrefix("api")
	router := gin.New()
	router.Use(RecoveryMiddleware(logger))
	router.Use(RequestID())
	router.Use(RequestLogger(logger))
	router.Use(MetricsMiddleware(opts.Metrics))
	router.Use(TracingMiddleware())

	if cfg.RateLimit.Enabled {
		router.Use(RateLimiter(cfg.RateLimit))
	}
	if cfg.EnableCORS {
		router.Use(CORSMiddleware(cfg.CORSOrigins))
	}

	s := &Server{
		router:         router,
		config:         cfg,
		gateway:        gateway,
		services:       svc,
		health:         opts.Health,
		metricsHandler: opts.MetricsHandler,
		exposeInternal: opts.ExposeInternalErrors,
		logger:         logger,
		metrics:        opts.Metrics,
		pages:          pages,
		server: &http.Server{
			Addr:         cfg.ListenAddress,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
	s.setupRoutes()
	return s, nil
}

// setupRoutes initializes all routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health.HealthHandler)
	s.router.GET("/api/health", s.health.HealthHandler)
	s.router.GET("/healthz", s.health.LivenessHandler)
	s.router.GET("/readyz", s.health.ReadinessHandler)
	if s.metricsHandler != nil {
		s.router.GET("/metrics", gin.WrapH(s.metricsHandler))
	}

	admin := s.router.Group("/api/admin", s.gateway.AdminTokenMiddleware())
	{
		admin.POST("/init-db", s.initDB)
		admin.POST("/migrate-embeddings", s.migrateEmbeddings)
		admin.POST("/reembed", s.reembed)
		admin.GET("/check-schema", s.checkSchema)
		admin.POST("/create-test-user", s.createTestUser)
		admin.GET("/test-embedding", s.testEmbedding)
	}

	twin := s.router.Group("/api/twin", s.gateway.APIKeyMiddleware())
	{
		twin.GET("/profile", s.getProfile)
		twin.PATCH("/profile", s.updateProfile)
		twin.GET("/modes", s.listModes)
		twin.GET("/samples", s.listSamples)
		twin.POST("/samples", s.createSample)
		twin.GET("/samples/:id", s.getSample)
		twin.GET("/samples/:id/metadata", s.getSampleMetadata)
		twin.PATCH("/samples/:id", s.updateSample)
		twin.DELETE("/samples/:id", s.deleteSample)
	}

	s.router.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, "/dashboard") })
	s.router.GET("/dashboard", s.gateway.DashboardMiddleware(), s.dashboard)
	s.router.GET(auth.LoginPath, s.loginPage)
	s.router.POST(auth.LoginPath, s.login)
	s.router.POST("/logout", s.logout)
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server without TLS
func (s *Server) Start() error {
	s.health.SetReady(true)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the API server
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	return s.server.Shutdown(ctx)
}
