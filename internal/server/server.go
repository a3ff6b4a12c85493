// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the citation agent over HTTP. Requests and
// responses use the platform's TaskEnvelope and CompletionReport shapes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pdiddy/citation-manager/internal/agent"
	"github.com/pdiddy/citation-manager/internal/metrics"
	"github.com/pdiddy/citation-manager/pkg/types"
)

// AgentLabel identifies the agent in response metadata.
const AgentLabel = "citation_manager"

const (
	defaultAddr       = ":5006"
	defaultMaxUpload  = 32 << 20
	shutdownTimeout   = 10 * time.Second
	timestampLayout   = "2006-01-02T15:04:05.000000"
	uploadRecipient   = "UI"
	unauthorizedError = "Unauthorized: Invalid API Key"
)

// Options configures a Server.
type Options struct {
	Config types.ServerConfig

	// StyleDir is the user style directory reported by /csl_status.
	StyleDir string

	// MaxUploadBytes rejects larger PDF uploads (default 32 MiB).
	MaxUploadBytes int64

	// Registry serves /metrics. When nil, /metrics is not routed.
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Server routes HTTP requests to the agent.
type Server struct {
	svc       *agent.Service
	cfg       types.ServerConfig
	styleDir  string
	maxUpload int64
	metrics   *metrics.Metrics
	logger    *zap.Logger
	engine    *gin.Engine
	now       func() time.Time
}

// New builds the gin engine and its routes.
func New(svc *agent.Service, opts Options) *Server {
	s := &Server{
		svc:       svc,
		cfg:       opts.Config,
		styleDir:  opts.StyleDir,
		maxUpload: opts.MaxUploadBytes,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       time.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.cfg.Addr == "" {
		s.cfg.Addr = defaultAddr
	}
	if s.cfg.Version == "" {
		s.cfg.Version = agent.Version
	}
	if s.maxUpload <= 0 {
		s.maxUpload = defaultMaxUpload
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.Use(cors())
	r.Use(apiKeyAuth(s.cfg.APIKey))

	r.GET("/health", s.health)
	r.POST("/process", s.process)
	r.POST("/batch", s.batch)
	r.POST("/bibliography", s.bibliography)
	r.POST("/convert", s.convert)
	r.POST("/ltm/retrieve", s.retrieve)
	r.GET("/csl_status", s.cslStatus)
	r.POST("/upload/pdf", s.uploadPDF)
	if opts.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))
	}

	s.engine = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", s.cfg.Addr), zap.String("version", s.cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving HTTP: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// output is the JSON document carried in a report's results.output.
type output struct {
	Status string `json:"status"`
	Result any    `json:"result"`
	Meta   *meta  `json:"meta,omitempty"`
}

type meta struct {
	Agent        string `json:"agent"`
	Version      string `json:"version"`
	Timestamp    string `json:"timestamp"`
	RenderEngine string `json:"render_engine,omitempty"`
	CSLStylePath string `json:"csl_style_path,omitempty"`

	// FallbackReason says why the manual format replaced the CSL engine.
	FallbackReason string `json:"fallback_reason,omitempty"`
}

func (s *Server) meta() *meta {
	return &meta{Agent: AgentLabel, Version: s.cfg.Version, Timestamp: s.timestamp()}
}

func (s *Server) timestamp() string {
	return s.now().UTC().Format(timestampLayout)
}

// report wraps out in a CompletionReport addressed to recipient.
func (s *Server) report(c *gin.Context, recipient, related string, out output) {
	body, err := json.Marshal(out)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "Encoding response failed: %v", err)
		return
	}
	c.JSON(http.StatusOK, types.CompletionReport{
		MessageID:        uuid.NewString(),
		Sender:           types.AgentName,
		Recipient:        recipient,
		RelatedMessageID: related,
		Status:           types.StatusSuccess,
		Results:          types.ReportResults{Output: string(body)},
	})
}

// fail aborts with {"detail": message}.
func (s *Server) fail(c *gin.Context, code int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.String("detail", msg))
	}
	c.AbortWithStatusJSON(code, gin.H{"detail": msg})
}

// decode binds and validates the request envelope.
func decode(c *gin.Context) (types.TaskEnvelope, error) {
	var env types.TaskEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		return env, err
	}
	return env, env.Validate()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		latency := time.Since(start)
		s.metrics.Request(route, status, latency)
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", latency),
		)
	}
}

// cors allows any origin. Credentials are not allowed, so browsers never
// attach cookies to cross-origin calls; clients authenticate with X-API-KEY.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// apiKeyAuth requires X-API-KEY to equal key. An empty key disables the
// check; /health is always open.
func apiKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" || c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		if c.GetHeader("X-API-KEY") != key {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": unauthorizedError})
			return
		}
		c.Next()
	}
}
