// Package server provides the read-only Gin REST API over stored results.
//
//	Public:          GET /healthz
//	Token-protected: GET /api/results, GET /api/results.csv, GET /metrics
package server

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/vesaa/speedtest2dynamodb/internal/export"
	"github.com/vesaa/speedtest2dynamodb/internal/metrics"
	"github.com/vesaa/speedtest2dynamodb/internal/models"
	"github.com/vesaa/speedtest2dynamodb/internal/store"
)

// Server serves records from a store.
type Server struct {
	store  store.Store
	loc    *time.Location
	logger zerolog.Logger
}

// New returns a Server. CSV timestamps are rendered in loc (time.Local when nil).
func New(s store.Store, loc *time.Location, logger zerolog.Logger) *Server {
	if loc == nil {
		loc = time.Local
	}
	return &Server{store: s, loc: loc, logger: logger}
}

// RegisterRoutes wires the API on r. An empty token disables authentication.
func (s *Server) RegisterRoutes(r *gin.Engine, token string) {
	// No auth, used by load-balancers / k8s probes.
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	auth := r.Group("/", TokenMiddleware(token))
	{
		auth.GET("/api/results", s.handleResults)
		auth.GET("/api/results.csv", s.handleResultsCSV)
		auth.GET("/metrics", s.handleMetrics)
	}
}

// scan returns all records oldest first, or writes a 500 and returns false.
func (s *Server) scan(c *gin.Context) ([]models.Measurement, bool) {
	records, err := s.store.Scan(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("Scan failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})
	return records, true
}

// handleResults returns every record as JSON.
//
//	GET /api/results
func (s *Server) handleResults(c *gin.Context) {
	records, ok := s.scan(c)
	if !ok {
		return
	}
	if records == nil {
		records = []models.Measurement{}
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

func (s *Server) handleResultsCSV(c *gin.Context) {
	records, ok := s.scan(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="speedtestresults.csv"`)
	c.Status(http.StatusOK)
	if err := export.WriteCSV(c.Writer, records, s.loc); err != nil {
		s.logger.Error().Err(err).Msg("Writing CSV response")
	}
}

// handleMetrics exposes the most recent record as Prometheus gauges.
func (s *Server) handleMetrics(c *gin.Context) {
	records, ok := s.scan(c)
	if !ok {
		return
	}
	rec := metrics.NewRecorder()
	if n := len(records); n > 0 {
		rec.ObserveMeasurement(records[n-1])
	}
	rec.Handler().ServeHTTP(c.Writer, c.Request)
}
