package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"marketfeed/config"
	"marketfeed/internal/cache"
	"marketfeed/internal/metrics"
	"marketfeed/internal/ratelimit"
	"marketfeed/internal/stream"
	"marketfeed/logger"
)

// Server exposes the read API: per-symbol snapshots, operational stats and
// Prometheus metrics.
type Server struct {
	cfg     *config.Config
	cache   *cache.Cache
	manager *stream.Manager
	router  *stream.Router
	limiter *ratelimit.Limiter
	http    *http.Server
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func New(cfg *config.Config, c *cache.Cache, m *stream.Manager, r *stream.Router, l *ratelimit.Limiter) *Server {
	return &Server{
		cfg:     cfg,
		cache:   c,
		manager: m,
		router:  r,
		limiter: l,
		log:     logger.GetLogger(),
	}
}

// Start binds the listener and serves until Stop.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	s.registerRoutes(engine)

	s.http = &http.Server{
		Addr:         s.cfg.Server.Address,
		Handler:      engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log := s.log.WithComponent("server")
	log.WithFields(logger.Fields{"address": s.cfg.Server.Address}).Info("read API listening")

	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("read API server failed")
		}
	}()
	return nil
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	if err := s.http.Shutdown(ctx); err != nil {
		s.log.WithComponent("server").WithError(err).Warn("server shutdown error")
	}
	s.log.WithComponent("server").Info("read API stopped")
}

func (s *Server) registerRoutes(engine *gin.Engine) {
	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := engine.Group("/api")
	api.GET("/snapshot/:symbol", s.handleSnapshot)
	api.GET("/symbols", s.handleSymbols)
	api.GET("/stats", s.handleStats)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": s.cfg.Marketfeed.Name,
		"version": s.cfg.Marketfeed.Version,
	})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	snap, err := s.cache.GetSnapshot(symbol)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown symbol %s", symbol)})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleSymbols(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symbols": s.cache.Symbols()})
}

func (s *Server) handleStats(c *gin.Context) {
	stats := gin.H{
		"symbols": s.cache.GetStats(),
	}
	if s.manager != nil {
		stats["connections"] = s.manager.Stats()
	}
	if s.router != nil {
		dropped, evicted := s.router.ReorderStats()
		stats["reorder"] = gin.H{"dropped": dropped, "evicted": evicted}
	}
	if s.limiter != nil {
		stats["rate_limit"] = s.limiter.Stats()
	}
	c.JSON(http.StatusOK, stats)
}
