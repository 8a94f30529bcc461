package adminapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/governor"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/dbctx"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/envutil"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/logger"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/store"
)

// Config controls which origins the admin API's CORS middleware allows
// and how it authenticates requests.
type Config struct {
	Addr        string
	JWTSecret   string
	CORSOrigins []string
}

// ConfigFromEnv builds a Config the way the teacher's services read
// their own settings: explicit env vars, sane local-dev defaults.
func ConfigFromEnv() Config {
	origins := envutil.String("ADMIN_API_CORS_ORIGINS", "http://localhost:3000")
	return Config{
		Addr:        envutil.String("ADMIN_API_ADDR", ":8090"),
		JWTSecret:   envutil.String("ADMIN_API_JWT_SECRET", ""),
		CORSOrigins: strings.Split(origins, ","),
	}
}

// Server exposes read-only operator views over the Task Store and
// Concurrency Governor. It never mutates pipeline state directly —
// every write path runs through the Worker Runtime or the Board
// Synchronizer, matching spec.md §9's note that the board, not an
// admin console, is the system of record for reviewer decisions.
type Server struct {
	log    *logger.Logger
	engine *gin.Engine
	cfg    Config
}

// New builds the gin.Engine the way the teacher's NewRouter does:
// global middleware first, then a protected group behind
// requireAuth(), following internal/http/router.go's public/protected
// split even though this surface has no public routes besides health.
func New(log *logger.Logger, cfg Config, tasks store.TaskRepo, gov *governor.Governor) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(cfg.CORSOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.JWTSecret != "" {
		auth := newAuthMiddleware(log, cfg.JWTSecret)
		protected := r.Group("/api")
		protected.Use(auth.requireAuth())
		registerRoutes(protected, log, tasks, gov)
	} else {
		log.Warn("ADMIN_API_JWT_SECRET unset, admin API routes are disabled")
	}

	return &Server{log: log.With("component", "AdminAPI"), engine: r, cfg: cfg}
}

func registerRoutes(g *gin.RouterGroup, log *logger.Logger, tasks store.TaskRepo, gov *governor.Governor) {
	g.GET("/tasks/:id", func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
			return
		}
		t, err := tasks.GetByID(dbctx.Context{Ctx: c.Request.Context()}, id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusOK, t)
	})

	g.GET("/governor", func(c *gin.Context) {
		snap := gov.Snapshot()
		out := make(map[string][2]int, len(snap))
		for class, v := range snap {
			out[string(class)] = v
		}
		c.JSON(http.StatusOK, gin.H{"classes": out})
	})
}

// Run starts the HTTP listener. Blocks until the listener stops or
// fails; it takes no context and has no shutdown hook of its own.
func (s *Server) Run() error {
	s.log.Info("admin api listening", "addr", s.cfg.Addr)
	return s.engine.Run(s.cfg.Addr)
}
