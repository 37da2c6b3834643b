// Package httpapi is the read-only HTTP view over persisted candidates, quota and the run log.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/jobsieve/internal/export"
	"github.com/spigell/jobsieve/internal/jobs"
	"github.com/spigell/jobsieve/internal/quota"
	"github.com/spigell/jobsieve/internal/storage"
)

const defaultRunsLimit = 50

// Reader is the read side of a storage backend.
type Reader interface {
	List(ctx context.Context, opts storage.ListOptions) ([]jobs.StoredCandidate, error)
	ListRuns(ctx context.Context, limit int) ([]jobs.SearchRunResult, error)
}

// QuotaReporter reports today's quota per platform.
type QuotaReporter interface {
	Status(ctx context.Context, platform string) (quota.Status, error)
}

type Deps struct {
	Store     Reader
	Quota     QuotaReporter
	Platforms []string
	Logger    *zap.Logger
}

type Server struct {
	store     Reader
	quota     QuotaReporter
	platforms []string
	logger    *zap.Logger
	engine    *gin.Engine
}

func New(deps *Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		store:     deps.Store,
		quota:     deps.Quota,
		platforms: deps.Platforms,
		logger:    logger,
		engine:    gin.New(),
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.engine.GET("/healthz", s.healthz)
	s.engine.GET("/candidates", s.candidates)
	s.engine.GET("/quota", s.quotaStatus)
	s.engine.GET("/runs", s.runs)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) candidates(c *gin.Context) {
	format, err := export.ParseFormat(c.DefaultQuery("format", "json"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts, err := listOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stored, err := s.store.List(c.Request.Context(), opts)
	if err != nil {
		s.fail(c, "listing candidates", err)
		return
	}

	data, err := export.Results(stored, format)
	if err != nil {
		s.fail(c, "exporting candidates", err)
		return
	}
	c.Data(http.StatusOK, format.ContentType(), data)
}

func listOptions(c *gin.Context) (storage.ListOptions, error) {
	opts := storage.ListOptions{Platform: strings.TrimSpace(c.Query("platform"))}

	if raw := c.Query("status"); raw != "" {
		status, err := jobs.ParseStatus(raw)
		if err != nil {
			return opts, err
		}
		opts.Status = status
	}
	if raw := c.Query("min_score"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return opts, errors.New("min_score must be a number")
		}
		opts.MinScore = v
	}
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return opts, errors.New("limit must be a non-negative integer")
		}
		opts.Limit = v
	}
	return opts, nil
}

func (s *Server) quotaStatus(c *gin.Context) {
	platforms := s.platforms
	if p := strings.TrimSpace(c.Query("platform")); p != "" {
		platforms = []string{p}
	}

	statuses := make([]quota.Status, 0, len(platforms))
	for _, p := range platforms {
		st, err := s.quota.Status(c.Request.Context(), p)
		if err != nil {
			s.fail(c, "reading quota", err)
			return
		}
		statuses = append(statuses, st)
	}
	c.JSON(http.StatusOK, statuses)
}

func (s *Server) runs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultRunsLimit)))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return
	}

	runs, err := s.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, "listing runs", err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) fail(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, storage.ErrUnavailable) {
		status = http.StatusServiceUnavailable
	}
	s.logger.Error(msg, zap.Error(err))
	c.JSON(status, gin.H{"error": msg})
}
