// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"meeting-insights-go/internal/logger"
	"meeting-insights-go/internal/pipeline"
	"meeting-insights-go/internal/store"
)

// Runner executes one submission.
type Runner interface {
	Run(ctx context.Context, sub pipeline.Submission) (*pipeline.Result, error)
}

// Pinger checks database reachability through the pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	MaxUploadBytes int64
	HealthTimeout  time.Duration
	Registerer     prometheus.Registerer
	Gatherer       prometheus.Gatherer
}

type Server struct {
	runner Runner
	db     Pinger
	opts   Options
	log    *logger.Logger

	requests *prometheus.CounterVec
}

func New(runner Runner, db Pinger, opts Options, log *logger.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 200 << 20
	}
	if opts.HealthTimeout == 0 {
		opts.HealthTimeout = 5 * time.Second
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		runner: runner,
		db:     db,
		opts:   opts,
		log:    log,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meeting_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
	}
	if opts.Registerer != nil {
		opts.Registerer.MustRegister(s.requests)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	api := r.Group("/api")
	api.POST("/upload", s.upload)
	api.GET("/health", s.health)

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	return r
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.HealthTimeout)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		reqLog(c).WithField("error", err.Error()).Warn("health check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"status": "unhealthy", "error": healthError(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// healthError names the failure kind; driver text stays in the log.
func healthError(err error) string {
	switch {
	case errors.Is(err, store.ErrPoolTimeout):
		return "database connection pool exhausted"
	case errors.Is(err, store.ErrQuery):
		return "database query failed"
	case errors.Is(err, context.DeadlineExceeded):
		return "database health check timed out"
	}
	return "database unavailable"
}
