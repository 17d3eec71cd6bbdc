// Package api exposes the scanner over HTTP. Scan results are streamed as
// newline-delimited JSON, one stream unit per line.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/allsafeASM/rmap/internal/models"
	"github.com/allsafeASM/rmap/internal/probes"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/projectdiscovery/gologger"
)

// ContentTypeNDJSON is the media type of streamed scan responses
const ContentTypeNDJSON = "application/x-ndjson"

// ScanIDHeader carries the identifier assigned to a streamed scan
const ScanIDHeader = "X-Scan-ID"

// Scanner streams scans and exposes the probes it matches against
type Scanner interface {
	Scan(ctx context.Context, req models.ScanRequest) <-chan models.ScanProgress
	Probes() *probes.Database
}

// Server serves the scan API
type Server struct {
	scanner Scanner
	engine  *gin.Engine
}

// probeView is the listing form of a probe
type probeView struct {
	Name     string      `json:"name"`
	Protocol string      `json:"protocol"`
	Matches  []matchView `json:"matches"`
	Fallback []string    `json:"fallback"`
}

type matchView struct {
	Service string `json:"service"`
	Pattern string `json:"pattern"`
	Version string `json:"version,omitempty"`
}

// NewServer creates the router and registers the routes
func NewServer(scanner Scanner) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{scanner: scanner, engine: engine}

	engine.GET("/healthz", s.health)
	v1 := engine.Group("/v1")
	{
		v1.POST("/network/scan", s.networkScan)
		v1.GET("/probes", s.listProbes)
	}

	return s
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// networkScan streams one JSON line per completed host. The scan stops when
// the client goes away.
func (s *Server) networkScan(c *gin.Context) {
	var req models.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scan request: " + err.Error()})
		return
	}

	scanID := uuid.New().String()
	gologger.Info().Msgf("Scan %s started for %d targets", scanID, len(req.IPAddresses))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	c.Header("Content-Type", ContentTypeNDJSON)
	c.Header("Cache-Control", "no-cache")
	c.Header(ScanIDHeader, scanID)
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	encoder := json.NewEncoder(c.Writer)
	sent := 0
	stream := s.scanner.Scan(ctx, req)
	for progress := range stream {
		if ctx.Err() != nil {
			continue
		}
		if err := encoder.Encode(progress.Response()); err != nil {
			gologger.Warning().Msgf("Scan %s: client write failed, cancelling: %v", scanID, err)
			cancel()
			continue
		}
		c.Writer.Flush()
		sent++
	}

	if ctx.Err() != nil {
		gologger.Warning().Msgf("Scan %s stopped after %d updates: %v", scanID, sent, ctx.Err())
		return
	}
	gologger.Info().Msgf("Scan %s finished after %d updates", scanID, sent)
}

func (s *Server) listProbes(c *gin.Context) {
	db := s.scanner.Probes()
	if db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "probe database not loaded"})
		return
	}

	views := make([]probeView, 0, db.Len())
	for _, p := range db.Probes() {
		view := probeView{
			Name:     p.Name,
			Protocol: p.Protocol,
			Matches:  make([]matchView, 0, len(p.Matches)),
			Fallback: p.Fallback,
		}
		if view.Fallback == nil {
			view.Fallback = []string{}
		}
		for _, m := range p.Matches {
			view.Matches = append(view.Matches, matchView{
				Service: m.Service,
				Pattern: m.Pattern.String(),
				Version: m.Version,
			})
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{
		"source": db.Source(),
		"count":  len(views),
		"probes": views,
	})
}

// requestLogger logs each request through gologger
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		gologger.Debug().Msgf("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
