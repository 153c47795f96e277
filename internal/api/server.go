// Package api exposes the engine over HTTP: read-only route, HUD and observer
// views, the imperative playback controls, spec validation and remembered
// camera poses.
//
// One Server owns one Engine. Every handler and the background ticker take the
// server mutex before touching it, so the engine itself stays single-threaded.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cxd309/spacetime-engine/internal/engine"
	"github.com/cxd309/spacetime-engine/internal/logging"
	"github.com/cxd309/spacetime-engine/internal/metrics"
	"github.com/cxd309/spacetime-engine/internal/store"
)

const Version = "0.3.0"

// Options configures a Server. Store and Metrics are optional.
type Options struct {
	Store   store.StoreInterface
	Metrics *metrics.Collector
	Logger  *slog.Logger
	TickHz  float64
}

type Server struct {
	mu      sync.Mutex
	engine  *engine.Engine
	store   store.StoreInterface
	metrics *metrics.Collector
	log     *slog.Logger

	instanceID string // X-Run-Id, one per server process
	lastRunID  string // store ID of the currently loaded route
	tickEvery  time.Duration
}

func NewServer(e *engine.Engine, opts Options) *Server {
	hz := opts.TickHz
	if hz <= 0 {
		hz = 30
	}
	return &Server{
		engine:     e,
		store:      opts.Store,
		metrics:    opts.Metrics,
		log:        logging.OrDiscard(opts.Logger).With(slog.String("component", "api")),
		instanceID: uuid.New().String(),
		tickEvery:  time.Duration(float64(time.Second) / hz),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestIDs())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	config.AllowHeaders = []string{"*"}
	config.ExposeHeaders = []string{"X-Request-Id", "X-Run-Id"}
	r.Use(cors.New(config))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.POST("/spec/validate", s.handleValidate)
	api.GET("/spec/last", s.handleSpecLast)
	api.GET("/runs", s.handleListRuns)
	api.GET("/runs/:id", s.handleGetRun)

	api.POST("/session", s.handleLoad)
	api.GET("/session/segments", s.handleSegments)
	api.GET("/session/snapshot", s.handleSnapshot)
	api.POST("/session/crosscheck", s.handleCrossCheck)

	pb := api.Group("/playback")
	pb.POST("/play", s.handlePlay)
	pb.POST("/pause", s.handlePause)
	pb.POST("/seek", s.handleSeek)
	pb.POST("/step", s.handleStep)
	pb.POST("/speed", s.handleSpeed)
	pb.POST("/follow", s.handleFollow)

	api.GET("/camera/:view", s.handleGetCamera)
	api.PUT("/camera/:view", s.handlePutCamera)
	return r
}

// requestIDs tags every response with X-Request-Id and X-Run-Id and logs the
// request once it completes.
func (s *Server) requestIDs() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := uuid.New().String()
		c.Header("X-Request-Id", reqID)
		c.Header("X-Run-Id", s.instanceID)
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		s.log.Info("http_request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.String("request_id", reqID),
			slog.Duration("latency", time.Since(start)),
		)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(c.Request.Method, route, status, time.Since(start).Seconds())
		}
	}
}

// RunTicker advances the engine in real time until ctx is cancelled. Ticks
// are skipped while no route is loaded.
func (s *Server) RunTicker(ctx context.Context) {
	t := time.NewTicker(s.tickEvery)
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			dt := now.Sub(last).Seconds()
			last = now
			s.tick(dt)
		}
	}
}

func (s *Server) tick(dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine.Session() == nil {
		return
	}
	if _, err := s.engine.Tick(dt); err != nil {
		s.log.Error("tick failed", slog.String("error", err.Error()))
	}
}

// ListenAndServe serves on addr and runs the ticker until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.RunTicker(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return srv.Shutdown(shutdownCtx)
	}
}
