package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"taskapi/internal/observability"
	"taskapi/internal/repository"
	"taskapi/internal/service"
)

// TokenVerifier resolves a bearer token to the user id it was issued for.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Config carries the optional pieces of the HTTP surface.
type Config struct {
	AppName       string
	AllowedOrigin string
	Logger        *logrus.Logger
	// Metrics and Gatherer are optional; /metrics is served only when Gatherer is set.
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	users  service.UserService
	tasks  service.TaskService
	tokens TokenVerifier
	cfg    Config
	log    *logrus.Entry
}

func NewHandler(users service.UserService, tasks service.TaskService, tokens TokenVerifier, cfg Config) (*Handler, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "*"
	}
	if err := registerValidators(); err != nil {
		return nil, err
	}
	return &Handler{
		users:  users,
		tasks:  tasks,
		tokens: tokens,
		cfg:    cfg,
		log:    cfg.Logger.WithField("component", "http"),
	}, nil
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware(h.cfg.AllowedOrigin))
	router.Use(requestLogger(h.log))
	if h.cfg.Metrics != nil {
		router.Use(h.cfg.Metrics.GinMiddleware())
	}

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, h.cfg.AppName+" is running!")
	})
	if h.cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		auth.POST("/register", h.register)
		auth.POST("/login", h.login)
		auth.GET("/me", h.requireAuth(), h.me)

		tasks := api.Group("/tasks", h.requireAuth())
		tasks.POST("", h.createTask)
		tasks.GET("", h.listTasks)
		tasks.GET("/:id", h.getTask)
		tasks.PUT("/:id", h.updateTask)
		tasks.DELETE("/:id", h.deleteTask)
	}
}

func corsMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if origin != "*" {
			c.Writer.Header().Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func requestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request served")
	}
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"message": message})
}

// respondServerError passes the raw error text through to the client.
func (h *Handler) respondServerError(c *gin.Context, err error, message string) {
	h.log.WithError(err).WithField("path", c.FullPath()).Error(message)
	c.JSON(http.StatusInternalServerError, gin.H{"message": message, "error": err.Error()})
}

// respondTaskError maps repository outcomes. Missing and foreign tasks share 404.
func (h *Handler) respondTaskError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		respondMessage(c, http.StatusNotFound, "Task not found.")
	case errors.Is(err, repository.ErrConflict):
		respondMessage(c, http.StatusConflict, "Task was modified concurrently, retry the request.")
	case errors.Is(err, service.ErrTitleRequired):
		respondMessage(c, http.StatusBadRequest, "Title must not be empty.")
	default:
		h.respondServerError(c, err, message)
	}
}
