// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"stone-hmi-service/internal/config"
	"stone-hmi-service/internal/discovery"
	internalDriver "stone-hmi-service/internal/driver"
	"stone-hmi-service/internal/handler"
	"stone-hmi-service/internal/metrics"
	"stone-hmi-service/internal/middleware"
	"stone-hmi-service/internal/service"
	"stone-hmi-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config         *config.Config
	logger         *zap.Logger
	displayService *service.DisplayService
	registry       *internalDriver.Registry
	scanners       *discovery.ScannerManager
	metricsReg     *prometheus.Registry
	displayMetrics *metrics.DisplayMetrics
	wsHandler      *handler.WebSocketHandler
}

// NewRouter creates a new router instance. metricsReg and displayMetrics may
// be nil when metrics are disabled.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	displayService *service.DisplayService,
	registry *internalDriver.Registry,
	scanners *discovery.ScannerManager,
	eventBus *handler.EventBus,
	metricsReg *prometheus.Registry,
	displayMetrics *metrics.DisplayMetrics,
) *Router {
	return &Router{
		config:         config,
		logger:         logger,
		displayService: displayService,
		registry:       registry,
		scanners:       scanners,
		metricsReg:     metricsReg,
		displayMetrics: displayMetrics,
		wsHandler:      handler.NewWebSocketHandler(displayService, eventBus, websocketOrigins(config.Security.AllowedOrigins), logger),
	}
}

// EventStream returns the WebSocket handler; its Run loop must be started by
// the caller
func (r *Router) EventStream() *handler.WebSocketHandler {
	return r.wsHandler
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	// Request ID first so recovery and access logs can carry it
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(r.logger))

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.displayService, r.config, r.logger)
	displayHandler := handler.NewDisplayHandler(r.displayService, r.logger)
	portsHandler := handler.NewPortsHandler(r.registry, r.logger)
	discoveryHandler := handler.NewDiscoveryHandler(r.scanners, r.logger)

	// Health check routes
	healthHandler.RegisterRoutes(&router.RouterGroup)

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	displayHandler.RegisterRoutes(apiV1)
	portsHandler.RegisterRoutes(apiV1)

	// State-changing and port-probing routes are rate limited per client
	limited := apiV1.Group("", middleware.RateLimitMiddleware(
		&r.config.Security,
		utils.NewSecurityLogger(r.logger),
		r.onRateLimited,
	))
	displayHandler.RegisterWriteRoutes(limited)
	discoveryHandler.RegisterRoutes(limited)

	// WebSocket routes
	r.wsHandler.RegisterRoutes(router.Group("/ws"))

	if r.config.Metrics.Enabled && r.metricsReg != nil {
		router.GET(r.config.Metrics.Path, gin.WrapH(metrics.Handler(r.metricsReg)))
	}

	r.addDocumentationRoutes(router)

	r.logger.Info("All routes configured successfully")
}

func (r *Router) onRateLimited() {
	if r.displayMetrics != nil {
		r.displayMetrics.HTTPRateLimited.Inc()
	}
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}

// websocketOrigins maps the CORS wildcard onto the WebSocket handler's
// accept-any setting
func websocketOrigins(allowed []string) []string {
	for _, o := range allowed {
		if o == "*" {
			return nil
		}
	}
	return allowed
}
