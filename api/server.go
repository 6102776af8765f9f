package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/OldStager01/packet-anomaly/api/docs"
	"github.com/OldStager01/packet-anomaly/api/handlers"
	"github.com/OldStager01/packet-anomaly/api/middleware"
	"github.com/OldStager01/packet-anomaly/api/websocket"
	"github.com/OldStager01/packet-anomaly/internal/auth"
	"github.com/OldStager01/packet-anomaly/internal/metrics"
	"github.com/OldStager01/packet-anomaly/pkg/config"
	"github.com/OldStager01/packet-anomaly/pkg/database"
	"github.com/OldStager01/packet-anomaly/pkg/database/queries"
	"github.com/OldStager01/packet-anomaly/pkg/models"
)

const maxRequestBody = 1 << 20

// RunManager is the orchestrator as the server sees it.
type RunManager interface {
	handlers.RunManager
	SubscribeAllEvents() <-chan *models.Event
}

type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      config.APIConfig
	db          *database.DB
	metrics     *metrics.Metrics
	authService *auth.Service
	wsHub       *websocket.Hub
	wsBridge    *websocket.EventBridge
	runManager  RunManager
}

// NewServer builds the router. db may be nil, in which case login is
// unavailable and run lookups only cover runs held in memory.
func NewServer(cfg *config.Config, db *database.DB, runManager RunManager, m *metrics.Metrics) *Server {
	if cfg.App.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	authService := auth.NewService(cfg.API.JWTSecret, cfg.API.JWTDuration).WithIssuer(cfg.API.JWTIssuer)
	wsHub := websocket.NewHub(websocket.NewWebSocketSettings(&cfg.WebSocket))

	s := &Server{
		router:      router,
		config:      cfg.API,
		db:          db,
		metrics:     m,
		authService: authService,
		wsHub:       wsHub,
		runManager:  runManager,
	}

	s.setupMiddleware()
	s.setupRoutes()

	go wsHub.Run()

	if runManager != nil {
		s.wsBridge = websocket.NewEventBridge(wsHub, runManager.SubscribeAllEvents())
		s.wsBridge.Start()
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(middleware.CORS(middleware.CORSFromConfig(s.config.CORS)))
	s.router.Use(middleware.TraceID())
	s.router.Use(middleware.RequestLogger())
	s.router.Use(middleware.RequestSizeLimit(maxRequestBody))
	s.router.Use(middleware.RateLimit(middleware.NewRateLimiter(s.config.RateLimit, time.Minute)))
}

func (s *Server) setupRoutes() {
	var (
		healthHandler *handlers.HealthHandler
		authHandler   *handlers.AuthHandler
		runHandler    *handlers.RunHandler
	)

	if s.db != nil {
		healthHandler = handlers.NewHealthHandler(s.db)
		authHandler = handlers.NewAuthHandler(queries.NewUserRepository(s.db), s.authService, s.config)
		runHandler = handlers.NewRunHandler(s.runManager, database.NewRunStore(s.db), s.config)
	} else {
		healthHandler = handlers.NewHealthHandler(nil)
		authHandler = handlers.NewAuthHandler(nil, s.authService, s.config)
		runHandler = handlers.NewRunHandler(s.runManager, nil, s.config)
	}

	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/health/ready", healthHandler.Ready)
	s.router.GET("/health/live", healthHandler.Live)

	s.router.POST("/auth/login", middleware.AuthRateLimiter(), authHandler.Login)

	s.router.GET("/ws", websocket.ServeWebSocket(s.wsHub))
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	runLimiter := middleware.NewEndpointRateLimiter()
	runLimiter.AddEndpoint("/runs", 10, time.Minute)

	protected := s.router.Group("/")
	protected.Use(middleware.JWTAuth(s.authService, s.config.CookieName))
	protected.Use(runLimiter.Middleware())
	{
		protected.POST("/runs", runHandler.Start)
		protected.GET("/runs", runHandler.List)
		protected.GET("/runs/:id", runHandler.Get)
		protected.GET("/runs/:id/status", runHandler.Status)
		protected.POST("/runs/:id/cancel", runHandler.Cancel)
		protected.GET("/runs/:id/models", runHandler.Models)
		protected.GET("/runs/:id/records", runHandler.Records)
	}
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.wsBridge != nil {
		s.wsBridge.Stop()
	}
	s.wsHub.Stop()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) WebSocketHub() *websocket.Hub {
	return s.wsHub
}

func (s *Server) AuthService() *auth.Service {
	return s.authService
}
