// Package server exposes the backup analysis pipeline over HTTP.
//
// Uploaded backups are parsed once, and the resulting analysis is held in a
// TTL cache keyed by a generated ID. Every read endpoint serves from that
// cache, so re-querying a dashboard never re-parses the file.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gocache "github.com/patrickmn/go-cache"

	"tally-analytics-service/internal/analyzer"
	"tally-analytics-service/internal/models"
	"tally-analytics-service/internal/parser"
	"tally-analytics-service/pkg/logger"
)

// Config holds HTTP server settings
type Config struct {
	Host string
	Port int

	// UploadLimit caps the accepted upload size in bytes
	UploadLimit int64

	// AnalysisTTL is how long a parsed analysis stays queryable
	AnalysisTTL time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible server defaults
func DefaultConfig() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            8080,
		UploadLimit:     2 * 1024 * 1024 * 1024,
		AnalysisTTL:     time.Hour,
		ReadTimeout:     15 * time.Minute,
		WriteTimeout:    15 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Validate checks the server configuration
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.UploadLimit <= 0 {
		return fmt.Errorf("upload limit must be positive, got %d", c.UploadLimit)
	}
	if c.AnalysisTTL <= 0 {
		return fmt.Errorf("analysis TTL must be positive, got %v", c.AnalysisTTL)
	}
	return nil
}

// Analysis is one parsed backup held for querying
type Analysis struct {
	ID         string                   `json:"id"`
	FileName   string                   `json:"file_name"`
	UploadedAt time.Time                `json:"uploaded_at"`
	Format     string                   `json:"detected_format"`
	Strategy   string                   `json:"extraction_strategy"`
	Companies  []*models.CompanyRecord  `json:"companies"`
	Summary    *models.FinancialSummary `json:"summary"`

	records *models.RecordSet
}

// Server is the HTTP analytics service
type Server struct {
	config   *Config
	parser   *parser.Parser
	analyzer *analyzer.Analyzer
	analyses *gocache.Cache
	logger   logger.Logger
	router   chi.Router
	http     *http.Server
}

// New creates a server around an existing parser
func New(config *Config, p *parser.Parser) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		config:   config,
		parser:   p,
		analyzer: analyzer.New(),
		analyses: gocache.New(config.AnalysisTTL, 2*config.AnalysisTTL),
		logger:   logger.WithComponent("server"),
	}
	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/backups", s.handleUpload)
		r.Route("/backups/{analysisID}", func(r chi.Router) {
			r.Get("/", s.handleAnalysis)
			r.Get("/summary", s.handleSummary)
			r.Get("/ledgers", s.handleLedgers)
			r.Get("/vouchers", s.handleVouchers)
			r.Get("/dashboards/{view}", s.handleDashboard)
		})
	})
	return r
}

// requestLogger logs each request with its duration and status
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.WithFields(logger.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(started).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Info("Request handled")
	})
}

// Handler exposes the router, primarily for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server until the context is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(logger.Fields{"addr": addr}).Info("HTTP server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// storeAnalysis caches a parsed analysis under its ID
func (s *Server) storeAnalysis(a *Analysis) {
	s.analyses.Set(a.ID, a, gocache.DefaultExpiration)
}

// lookupAnalysis fetches a cached analysis, or nil when expired or unknown
func (s *Server) lookupAnalysis(id string) *Analysis {
	if v, ok := s.analyses.Get(id); ok {
		return v.(*Analysis)
	}
	return nil
}
