// Package api exposes the reminder store over a JSON REST surface.
package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pathakanu/remindbot/internal/metrics"
	"github.com/pathakanu/remindbot/internal/store"
)

// Options configures a Server.
type Options struct {
	Store    *store.Store
	Logger   *log.Logger
	Metrics  *metrics.Recorder
	Location *time.Location
	CORS     bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server routes HTTP requests to the store.
type Server struct {
	store   *store.Store
	log     *log.Logger
	metrics *metrics.Recorder
	loc     *time.Location
	now     func() time.Time
	engine  *gin.Engine
}

// New builds the gin engine and registers every route.
func New(opts Options) *Server {
	s := &Server{
		store:   opts.Store,
		log:     opts.Logger,
		metrics: opts.Metrics,
		loc:     opts.Location,
		now:     opts.Now,
	}
	if s.log == nil {
		s.log = log.Default()
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}

	engine := gin.New()
	engine.Use(gin.LoggerWithWriter(s.log.Writer()))
	engine.Use(gin.RecoveryWithWriter(s.log.Writer()))
	engine.Use(requestID())
	engine.Use(observe(s.metrics))

	if opts.CORS {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", requestIDHeader}
		engine.Use(cors.New(corsConfig))
	}

	s.engine = engine
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	users := s.engine.Group("/users")
	{
		users.GET("/", s.listUsers)
		users.POST("/", s.createUser)
		users.GET("/:id", s.getUser)
		users.PUT("/:id", s.updateUser)
		users.DELETE("/:id", s.deleteUser)
	}

	reminders := s.engine.Group("/reminders")
	{
		reminders.GET("/", s.listReminders)
		reminders.POST("/", s.createReminder)
		reminders.GET("/:id", s.getReminder)
		reminders.PUT("/:id", s.updateReminder)
		reminders.DELETE("/:id", s.deleteReminder)
		reminders.GET("/:id/schedule", s.reminderSchedule)
	}

	tags := s.engine.Group("/tags")
	{
		tags.GET("/", s.listTags)
		tags.POST("/", s.createTag)
		tags.GET("/:id", s.getTag)
		tags.PUT("/:id", s.updateTag)
		tags.DELETE("/:id", s.deleteTag)
	}
}

// Handler returns the engine wrapped with OpenTelemetry instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.engine, "remindbot.api")
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
