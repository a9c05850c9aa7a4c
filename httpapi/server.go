// Package httpapi serves the dashboard API over the aggregation pipeline.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"leadboard/metrics"
	"leadboard/models"
	"leadboard/services"
	"leadboard/storage"
	"leadboard/utils"
)

const (
	maxPageLimit = 500

	// HeaderExportWarning carries the reason an export produced no file.
	HeaderExportWarning = "X-Export-Warning"
)

// Server provides the dashboard HTTP endpoints.
type Server struct {
	echo     *echo.Echo
	pipeline *services.Pipeline
	logger   *utils.Logger
	metrics  *metrics.Metrics
	addr     string
}

// NewServer creates a Server bound to addr.
func NewServer(p *services.Pipeline, logger *utils.Logger, addr string) (*Server, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		pipeline: p,
		logger:   logger,
		metrics:  metrics.New(),
		addr:     addr,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)

	s.registerRoutes()
	return s, nil
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	zl := s.logger.Zap()
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		status := c.Response().Status

		s.metrics.HTTPRequests.WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).Inc()
		zl.Info("http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		)
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")
	api.GET("/reports/campaign", s.handleReport)
	api.GET("/:view/export", s.handleExport)
	api.GET("/:view", s.handleList)
}

// ServeHTTP lets the server be mounted or driven directly in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// ErrorResponse is the body of a rejected request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func badRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

func (s *Server) criteria(c echo.Context) (models.FilterCriteria, error) {
	return services.ParseCriteria(services.CriteriaInput{
		Search:    c.QueryParam("search"),
		DateRange: c.QueryParam("dateRange"),
		Start:     c.QueryParam("start"),
		End:       c.QueryParam("end"),
		DateField: c.QueryParam("dateField"),
		Status:    c.QueryParam("status"),
		Keywords:  c.QueryParam("keywords"),
		Sort:      c.QueryParam("sort"),
		Order:     c.QueryParam("order"),
	}, s.pipeline.Location())
}

func intParam(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func (s *Server) handleList(c echo.Context) error {
	view, err := services.ParseView(c.Param("view"))
	if err != nil || !view.Aggregated() {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("no list named %q", c.Param("view"))})
	}
	criteria, err := s.criteria(c)
	if err != nil {
		return badRequest(c, err)
	}
	page, err := intParam(c, "page", 1)
	if err != nil {
		return badRequest(c, err)
	}
	limit, err := intParam(c, "limit", services.DefaultPageLimit)
	if err != nil {
		return badRequest(c, err)
	}
	limit = min(max(limit, 1), maxPageLimit)

	res := s.pipeline.List(c.Request().Context(), services.ListQuery{
		View:     view,
		Criteria: criteria,
		Page:     page,
		Limit:    limit,
	})
	if res.Error != "" {
		return c.JSON(http.StatusBadGateway, res)
	}
	return c.JSON(http.StatusOK, res)
}

// attachment delays the response headers until the first CSV byte, so an
// empty export can still answer 204.
type attachment struct {
	resp    *echo.Response
	name    string
	started bool
}

func (a *attachment) Write(p []byte) (int, error) {
	if !a.started {
		h := a.resp.Header()
		h.Set(echo.HeaderContentType, storage.MimeTypeCSV)
		h.Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", a.name))
		a.resp.WriteHeader(http.StatusOK)
		a.started = true
	}
	return a.resp.Write(p)
}

func (s *Server) handleExport(c echo.Context) error {
	view, err := services.ParseView(c.Param("view"))
	if err != nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	}
	criteria, err := s.criteria(c)
	if err != nil {
		return badRequest(c, err)
	}

	out := &attachment{resp: c.Response(), name: s.pipeline.ExportFileName(view, criteria)}
	res := s.pipeline.Export(c.Request().Context(), view, criteria, out)

	switch {
	case out.started:
		if res.Error != "" {
			s.logger.Error("[http] Export %s aborted mid-stream: %s", view, res.Error)
		}
		return nil
	case res.Warning != "":
		c.Response().Header().Set(HeaderExportWarning, res.Warning)
		return c.NoContent(http.StatusNoContent)
	default:
		return c.JSON(http.StatusBadGateway, res)
	}
}

func (s *Server) handleReport(c echo.Context) error {
	criteria, err := s.criteria(c)
	if err != nil {
		return badRequest(c, err)
	}
	res := s.pipeline.Report(c.Request().Context(), criteria)
	if res.Error != "" {
		return c.JSON(http.StatusBadGateway, res)
	}

	if c.QueryParam("format") == "html" {
		body, err := storage.RenderReportHTML(res.Report, s.pipeline.Now().In(s.pipeline.Location()))
		if err != nil {
			return err
		}
		return c.HTMLBlob(http.StatusOK, body)
	}
	return c.JSON(http.StatusOK, res)
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("[http] Listening on %s", s.addr)
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("[http] Shutting down")
	return s.echo.Shutdown(ctx)
}
