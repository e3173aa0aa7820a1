package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/cozy-crashes/crashlens/internal/pipeline"
	"github.com/cozy-crashes/crashlens/internal/remoteconfig"
	"github.com/cozy-crashes/crashlens/internal/report"
	"github.com/cozy-crashes/crashlens/internal/store"
	"github.com/cozy-crashes/crashlens/internal/upload"
)

func (s *Server) snapshot() *remoteconfig.Snapshot {
	if s.deps.Config == nil {
		return remoteconfig.Default()
	}
	return s.deps.Config.Current()
}

// analyze runs the pipeline on the request content and returns the report.
func (s *Server) analyze(c echo.Context) error {
	var req AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Content) == "" && len(req.Attachments) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "content or attachments required")
	}

	ctx := c.Request().Context()
	if s.deps.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.RequestTimeout)
		defer cancel()
	}
	subject, _ := SubjectFromContext(ctx)
	ev := req.event()
	if ev.Author == "" {
		ev.Author = subject
	}
	analyzed := s.deps.Pipeline.Analyze(ctx, s.snapshot(), req.Content, req.Attachments, ev)
	r := report.New(req.Source, analyzed, s.deps.Now())

	if s.deps.Store != nil && len(r.Logs) > 0 {
		if err := s.deps.Store.SaveReport(ctx, r); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "save report: "+err.Error())
		}
	}
	s.deps.Logger.Debug("analyzed",
		zap.String("report", r.ID.String()),
		zap.String("subject", subject),
		zap.Int("logs", len(r.Logs)),
		zap.Int("skipped", r.Skipped))
	if !req.IncludeContent {
		r = r.WithoutContent()
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) stages(c echo.Context) error {
	var out []StageInfo
	add := func(kind pipeline.Kind, stages []pipeline.Stage) {
		for _, st := range stages {
			out = append(out, StageInfo{Kind: string(kind), Identifier: st.Identifier(), Order: st.Order().String()})
		}
	}
	p := s.deps.Pipeline
	add(pipeline.KindRetriever, asStages(p.Retrievers().Ordered()))
	add(pipeline.KindParser, asStages(p.Parsers().Ordered()))
	add(pipeline.KindProcessor, asStages(p.Processors().Ordered()))
	return c.JSON(http.StatusOK, out)
}

func asStages[T pipeline.Stage](in []T) []pipeline.Stage {
	out := make([]pipeline.Stage, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func (s *Server) listReports(c echo.Context) error {
	if s.deps.Store == nil {
		return errStorageDisabled
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 500")
		}
		limit = n
	}
	list, err := s.deps.Store.ListReports(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	if list == nil {
		list = []store.Summary{}
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) getReport(c echo.Context) error {
	r, err := s.loadReport(c)
	if err != nil {
		return err
	}
	if c.QueryParam("include_content") != "true" {
		r = r.WithoutContent()
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) loadReport(c echo.Context) (report.Report, error) {
	if s.deps.Store == nil {
		return report.Report{}, errStorageDisabled
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return report.Report{}, echo.NewHTTPError(http.StatusBadRequest, "invalid report id")
	}
	r, err := s.deps.Store.GetReport(c.Request().Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return report.Report{}, echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	return r, err
}

// uploadLog shares one log of a stored report on mclo.gs. Repeated and
// concurrent calls return the first recorded upload.
func (s *Server) uploadLog(c echo.Context) error {
	if s.deps.Uploader == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "uploads are not configured")
	}
	r, err := s.loadReport(c)
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 || index >= len(r.Logs) {
		return echo.NewHTTPError(http.StatusNotFound, "log not found")
	}

	ctx := c.Request().Context()
	key := fmt.Sprintf("%s/%d", r.ID, index)
	v, err, _ := s.uploads.Do(key, func() (any, error) {
		return s.uploadOnce(ctx, r, index)
	})
	if err != nil {
		return err
	}
	out := v.(uploadOutcome)
	if out.created {
		return c.JSON(http.StatusCreated, out.result)
	}
	return c.JSON(http.StatusOK, out.result)
}

type uploadOutcome struct {
	result  upload.Result
	created bool
}

func (s *Server) uploadOnce(ctx context.Context, r report.Report, index int) (uploadOutcome, error) {
	existing, err := s.deps.Store.GetUpload(ctx, r.ID, index)
	switch {
	case err == nil:
		return uploadOutcome{result: existing}, nil
	case !errors.Is(err, store.ErrNotFound):
		return uploadOutcome{}, err
	}

	content := r.Logs[index].Content
	if strings.TrimSpace(content) == "" {
		return uploadOutcome{}, echo.NewHTTPError(http.StatusUnprocessableEntity, "log has no content to upload")
	}
	res, err := s.deps.Uploader.Upload(ctx, content)
	if err != nil {
		return uploadOutcome{}, echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	if err := s.deps.Store.SaveUpload(ctx, r.ID, index, res); err != nil {
		s.deps.Logger.Warn("upload not recorded", zap.String("report", r.ID.String()), zap.Int("index", index), zap.Error(err))
		return uploadOutcome{result: res, created: true}, nil
	}
	// Another writer may have recorded first; its upload wins.
	stored, err := s.deps.Store.GetUpload(ctx, r.ID, index)
	if err != nil {
		s.deps.Logger.Warn("recorded upload not readable", zap.String("report", r.ID.String()), zap.Int("index", index), zap.Error(err))
		return uploadOutcome{result: res, created: true}, nil
	}
	return uploadOutcome{result: stored, created: stored == res}, nil
}
