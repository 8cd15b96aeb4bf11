package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smilemakc/nbflow/internal/engine"
	"github.com/smilemakc/nbflow/internal/eventbus"
	"github.com/smilemakc/nbflow/internal/infrastructure/logger"
	"github.com/smilemakc/nbflow/internal/infrastructure/monitoring"
	ws "github.com/smilemakc/nbflow/internal/infrastructure/websocket"
)

// ServerConfig holds REST server options.
type ServerConfig struct {
	EnableCORS bool
	Debug      bool
}

// Server is the HTTP surface of the notebook engine.
type Server struct {
	scheduler *engine.Scheduler
	bus       *eventbus.Bus
	metrics   *monitoring.Metrics
	logger    *logger.Logger
	router    *gin.Engine
	wsHandler *ws.Handler
}

// NewServer wires routes over the scheduler and event bus.
func NewServer(scheduler *engine.Scheduler, bus *eventbus.Bus, metrics *monitoring.Metrics, log *logger.Logger, cfg ServerConfig) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		scheduler: scheduler,
		bus:       bus,
		metrics:   metrics,
		logger:    log,
		wsHandler: ws.NewHandler(bus, metrics, log),
	}

	router := gin.New()
	router.Use(Recovery(log))
	router.Use(RequestLogger(log))
	if cfg.EnableCORS {
		router.Use(CORS())
	}

	s.router = router
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/health", s.HandleHealth)
	s.router.GET("/ready", s.HandleReady)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	nb := s.router.Group("/notebook")
	{
		nb.GET("", s.HandleGetNotebook)
		nb.PATCH("/settings", s.HandleUpdateSettings)
		nb.POST("/cells", s.HandleCreateCell)
		nb.PATCH("/cells/:id", s.HandleUpdateCell)
		nb.DELETE("/cells/:id", s.HandleDeleteCell)
		nb.POST("/run", s.HandleRun)
		nb.POST("/test-connection", s.HandleTestConnection)
		nb.GET("/events", s.HandleEvents)
		nb.GET("/ws", s.wsHandler.Handle)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HandleHealth handles GET /health.
func (s *Server) HandleHealth(c *gin.Context) {
	respondJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady handles GET /ready. Readiness includes the query backend
// only when a DSN is configured.
func (s *Server) HandleReady(c *gin.Context) {
	if s.scheduler.Snapshot().Settings.DSN != "" {
		if ok, message := s.scheduler.TestConnection(c.Request.Context()); !ok {
			respondJSON(c, http.StatusServiceUnavailable, gin.H{
				"status":  "not ready",
				"message": message,
			})
			return
		}
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "ready"})
}
