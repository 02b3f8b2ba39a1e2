// Package server exposes the crawl supervisor and progress reports over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/researchaccelerator-hub/housing-map-crawler/common"
	"github.com/researchaccelerator-hub/housing-map-crawler/model"
	"github.com/researchaccelerator-hub/housing-map-crawler/supervisor"
)

// Controller starts and stops crawl runs.
type Controller interface {
	Start(city model.City) (supervisor.Status, error)
	Stop() error
	Status() supervisor.Status
}

// Reporter builds progress reports; state.Store satisfies it.
type Reporter interface {
	Report(ctx context.Context, ds, city string) (model.ProgressReport, error)
}

// Server holds the handlers' dependencies.
type Server struct {
	ctrl    Controller
	reports Reporter
	cities  []model.City
	logDir  string
	now     func() time.Time
}

func New(ctrl Controller, reports Reporter, cities []model.City, logDir string) *Server {
	return &Server{ctrl: ctrl, reports: reports, cities: cities, logDir: logDir, now: time.Now}
}

// Router returns the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", s.health)
	r.GET("/cities", s.listCities)

	spider := r.Group("/spider")
	spider.POST("/start", s.start)
	spider.POST("/stop", s.stop)
	spider.GET("/status", s.status)
	spider.GET("/progress", s.progress)
	spider.GET("/log", s.runLog)
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Control server listening")
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
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request handled")
	}
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": message})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// listCities maps every configured city name to its code.
func (s *Server) listCities(c *gin.Context) {
	out := make(map[string]string, len(s.cities))
	for _, city := range s.cities {
		out[city.Name] = city.Code
	}
	c.JSON(http.StatusOK, out)
}

// lookupCity resolves the city query parameter by name or code.
func (s *Server) lookupCity(c *gin.Context) (model.City, bool) {
	q := strings.TrimSpace(c.Query("city"))
	if q == "" {
		abort(c, http.StatusBadRequest, "missing_parameter", "city parameter is required")
		return model.City{}, false
	}
	for _, city := range s.cities {
		if city.Name == q || city.Code == q {
			return city, true
		}
	}
	abort(c, http.StatusNotFound, "unknown_city", "no city named "+q)
	return model.City{}, false
}

// crawlDate reads the ds parameter, defaulting to today.
func (s *Server) crawlDate(c *gin.Context) (string, bool) {
	ds := c.Query("ds")
	if ds == "" {
		return common.CrawlDate(s.now()), true
	}
	if err := common.ValidateCrawlDate(ds); err != nil {
		abort(c, http.StatusBadRequest, "invalid_parameter", err.Error())
		return "", false
	}
	return ds, true
}

func (s *Server) start(c *gin.Context) {
	city, ok := s.lookupCity(c)
	if !ok {
		return
	}
	st, err := s.ctrl.Start(city)
	switch {
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":   "already_running",
			"message": err.Error(),
			"status":  st,
		})
	case err != nil:
		abort(c, http.StatusInternalServerError, "start_failed", err.Error())
	default:
		c.JSON(http.StatusAccepted, gin.H{"msg": "spider started", "city_code": city.Code, "status": st})
	}
}

func (s *Server) stop(c *gin.Context) {
	if err := s.ctrl.Stop(); err != nil {
		if errors.Is(err, supervisor.ErrNotRunning) {
			abort(c, http.StatusNotFound, "not_running", "no running spider")
			return
		}
		abort(c, http.StatusInternalServerError, "stop_failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "spider stopping"})
}

func (s *Server) status(c *gin.Context) {
	st := s.ctrl.Status()
	c.JSON(http.StatusOK, gin.H{"is_spider_running": st.State == supervisor.Running, "status": st})
}

func (s *Server) progress(c *gin.Context) {
	city, ok := s.lookupCity(c)
	if !ok {
		return
	}
	ds, ok := s.crawlDate(c)
	if !ok {
		return
	}
	report, err := s.reports.Report(c.Request.Context(), ds, city.Code)
	if err != nil {
		log.Error().Err(err).Str("city", city.Code).Str("ds", ds).Msg("Failed to build progress report")
		abort(c, http.StatusInternalServerError, "report_failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, report)
}

// runLog returns the run log of a city and date; a missing log is empty.
func (s *Server) runLog(c *gin.Context) {
	city, ok := s.lookupCity(c)
	if !ok {
		return
	}
	ds, ok := s.crawlDate(c)
	if !ok {
		return
	}
	tail := 0
	if raw := c.Query("tail"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			abort(c, http.StatusBadRequest, "invalid_parameter", "tail must be a non-negative integer")
			return
		}
		tail = n
	}

	lines, err := common.ReadLogLines(common.RunLogPath(s.logDir, city.Code, ds), tail)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		abort(c, http.StatusInternalServerError, "log_failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ds":         ds,
		"city_code":  city.Code,
		"spider_log": strings.Join(lines, "\n"),
	})
}
