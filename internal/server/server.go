// Package server exposes the analysis pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cozy-crashes/crashlens/internal/pipeline"
	"github.com/cozy-crashes/crashlens/internal/remoteconfig"
	"github.com/cozy-crashes/crashlens/internal/report"
	"github.com/cozy-crashes/crashlens/internal/store"
	"github.com/cozy-crashes/crashlens/internal/telemetry"
	"github.com/cozy-crashes/crashlens/internal/upload"
)

var errStorageDisabled = echo.NewHTTPError(http.StatusServiceUnavailable, "report storage is not configured")

// ReportStore persists reports and upload results. *store.Store implements it.
type ReportStore interface {
	SaveReport(ctx context.Context, r report.Report) error
	GetReport(ctx context.Context, id uuid.UUID) (report.Report, error)
	ListReports(ctx context.Context, limit int) ([]store.Summary, error)
	SaveUpload(ctx context.Context, id uuid.UUID, index int, res upload.Result) error
	GetUpload(ctx context.Context, id uuid.UUID, index int) (upload.Result, error)
}

type Uploader interface {
	Upload(ctx context.Context, content string) (upload.Result, error)
}

// SnapshotSource yields the current remote config. *remoteconfig.Cache implements it.
type SnapshotSource interface {
	Current() *remoteconfig.Snapshot
}

type Deps struct {
	Pipeline *pipeline.Pipeline
	Config   SnapshotSource
	// Store is optional; without it reports are returned but not kept.
	Store    ReportStore
	Uploader Uploader
	Logger   *zap.Logger
	Metrics  *telemetry.Metrics
	Gatherer prometheus.Gatherer
	// Secret enables bearer-token auth on /api when non-empty.
	Secret         []byte
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	Now            func() time.Time
}

type Server struct {
	e    *echo.Echo
	deps Deps

	// uploads coalesces concurrent uploads of the same log.
	uploads singleflight.Group
}

func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	deps.Logger = deps.Logger.Named("http")
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	if deps.MaxBodyBytes > 0 {
		e.Use(middleware.BodyLimit(strconv.FormatInt(deps.MaxBodyBytes, 10)))
	}
	e.Use(requestMetrics(deps.Metrics))
	e.HTTPErrorHandler = errorHandler(deps.Logger)

	s := &Server{e: e, deps: deps}
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	api := e.Group("/api")
	if len(deps.Secret) > 0 {
		api.Use(EchoAuthMiddleware(deps.Secret))
	}
	api.POST("/analyze", s.analyze)
	api.GET("/stages", s.stages)
	api.GET("/reports", s.listReports)
	api.GET("/reports/:id", s.getReport)
	api.POST("/reports/:id/logs/:index/upload", s.uploadLog)
	return s
}

func (s *Server) Handler() http.Handler { return s.e }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info("listening", zap.String("addr", addr))
		errCh <- s.e.Start(addr)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.e.Shutdown(shutdownCtx)
	}
}

func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		fields := []zap.Field{
			zap.Int("status", code),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("remote", c.RealIP()),
			zap.Error(err),
		}
		if code >= http.StatusInternalServerError {
			logger.Error("request failed", fields...)
		} else {
			logger.Debug("request rejected", fields...)
		}
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
}

// requestMetrics counts responses by route pattern and status code.
func requestMetrics(m *telemetry.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			code := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				code = he.Code
			} else if err != nil {
				code = http.StatusInternalServerError
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.HTTPRequest(route, strconv.Itoa(code))
			return err
		}
	}
}
