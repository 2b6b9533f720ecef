// Package server - HTTP API над базой знаний
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voice_rag/internal/app"
	"voice_rag/internal/domain"
	"voice_rag/internal/index"
	"voice_rag/internal/kb"
	"voice_rag/internal/loader"
)

// Service - то, что сервер умеет делать с базой знаний
type Service interface {
	IngestFiles(ctx context.Context, uploads []loader.Upload) (kb.IngestReport, error)
	AddText(ctx context.Context, name, text string) (kb.IngestReport, error)
	Search(ctx context.Context, query string, k int) ([]kb.Result, error)
	Ask(ctx context.Context, question string) (app.Answer, error)
	Stats() kb.Stats
	Clear(ctx context.Context) error
	RemoveDocument(ctx context.Context, sourceID string) (int, error)
}

type Server struct {
	e      *echo.Echo
	svc    Service
	logger *log.Logger
}

func New(svc Service, registry *prometheus.Registry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64M"))

	s := &Server{
		e:      e,
		svc:    svc,
		logger: log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
	}
	e.HTTPErrorHandler = s.handleError

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if registry != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api")
	api.POST("/documents", s.uploadDocuments)
	api.POST("/documents/text", s.addText)
	api.DELETE("/documents", s.clear)
	api.DELETE("/documents/:source", s.removeDocument)
	api.GET("/stats", s.stats)
	api.POST("/search", s.search)
	api.POST("/ask", s.ask)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) Start(addr string) error {
	s.logger.Printf("🚀 Listening on %s", addr)
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// handleError - единый JSON-ответ об ошибке
func (s *Server) handleError(err error, c echo.Context) {
	code, msg := statusFor(err)
	req := c.Request()
	s.logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]interface{}{"error": msg})
	}
}

// statusFor переводит ошибки домена в HTTP-коды
func statusFor(err error) (int, string) {
	var (
		httpErr     *echo.HTTPError
		unsupported *domain.UnsupportedFormatError
		loadErr     *domain.LoadError
		dimErr      *domain.DimensionMismatchError
		timeoutErr  *domain.TimeoutError
		embErr      *domain.EmbeddingError
		genErr      *domain.GenerationError
	)
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code, fmt.Sprint(httpErr.Message)
	case errors.Is(err, domain.ErrEmptyQuery), errors.Is(err, index.ErrInvalidK),
		errors.As(err, &unsupported), errors.As(err, &loadErr):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &dimErr):
		return http.StatusConflict, err.Error()
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, err.Error()
	case errors.As(err, &genErr):
		return http.StatusBadGateway, "could not generate an answer"
	case errors.As(err, &embErr):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
