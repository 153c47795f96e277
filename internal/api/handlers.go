package api

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cxd309/spacetime-engine/internal/engine"
	"github.com/cxd309/spacetime-engine/internal/geom"
	"github.com/cxd309/spacetime-engine/internal/graph"
	"github.com/cxd309/spacetime-engine/internal/observer"
	"github.com/cxd309/spacetime-engine/internal/playback"
	"github.com/cxd309/spacetime-engine/internal/segment"
	"github.com/cxd309/spacetime-engine/internal/store"
	"github.com/cxd309/spacetime-engine/internal/validation"
)

var errNoStore = errors.New("no store configured")

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrNoSession):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errNoStore):
		return http.StatusServiceUnavailable
	case errors.Is(err, playback.ErrInvalidArgument),
		errors.Is(err, engine.ErrPlanRejected),
		errors.Is(err, graph.ErrMissingEdge),
		errors.Is(err, graph.ErrUnknownState),
		errors.Is(err, graph.ErrDuplicateState),
		errors.Is(err, graph.ErrDuplicateEdge),
		errors.Is(err, graph.ErrEmptyStates),
		errors.Is(err, segment.ErrShortPath),
		errors.Is(err, segment.ErrMissingPosition),
		errors.Is(err, segment.ErrUnknownMode):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func (s *Server) handleStatus(c *gin.Context) {
	s.mu.Lock()
	info := gin.H{
		"status":   "ok",
		"version":  Version,
		"run_id":   s.instanceID,
		"go":       runtime.Version(),
		"session":  s.sessionInfo(),
		"last_run": s.lastRunID,
	}
	s.mu.Unlock()

	if s.store != nil {
		if n, err := s.store.CountRuns(); err == nil {
			info["runs"] = n
		}
		if rec, err := s.store.LatestValidation(); err == nil {
			info["last_validate"] = rec.Report.Summary
		}
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) sessionInfo() gin.H {
	sess := s.engine.Session()
	if sess == nil {
		return gin.H{"loaded": false}
	}
	hud, _ := s.engine.HUD()
	return gin.H{
		"loaded":           true,
		"state":            hud.State,
		"segments":         len(sess.Route.Segments),
		"total_duration_s": sess.Route.TotalDuration(),
		"absolute":         sess.Route.Absolute,
	}
}

type validateRequest struct {
	graph.GraphSpec
	WarnedOnly bool `json:"warned_only"`
}

func (s *Server) handleValidate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, err := graph.NewGraph(req.GraphSpec)
	if err != nil {
		fail(c, err)
		return
	}
	report := validation.Build(g, req.WarnedOnly)

	if s.store != nil {
		s.mu.Lock()
		runID := s.lastRunID
		s.mu.Unlock()
		if _, err := s.store.SaveValidation(runID, report); err != nil {
			s.log.Error("save validation", slog.String("error", err.Error()))
		}
	}
	s.log.Info("spec_validated",
		slog.Int("edges", report.Summary.EdgeCount),
		slog.Int("total_warnings", report.Summary.TotalWarnings),
	)
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleSpecLast(c *gin.Context) {
	if s.store == nil {
		fail(c, errNoStore)
		return
	}
	run, err := s.store.LatestRun()
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{"spec": nil})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"spec": run.Spec, "plan": run.Plan, "run_id": run.ID})
}

func (s *Server) handleListRuns(c *gin.Context) {
	if s.store == nil {
		fail(c, errNoStore)
		return
	}
	limit := 0
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	runs, err := s.store.ListRuns(limit)
	if err != nil {
		fail(c, err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleGetRun(c *gin.Context) {
	if s.store == nil {
		fail(c, errNoStore)
		return
	}
	run, err := s.store.GetRun(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

type loadRequest struct {
	Spec      graph.GraphSpec            `json:"spec"`
	Plan      engine.Plan                `json:"plan"`
	Positions map[graph.NodeID]geom.Vec3 `json:"positions"`
}

func (s *Server) handleLoad(c *gin.Context) {
	var req loadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.engine.LoadWithPositions(req.Spec, req.Plan, req.Positions)
	if err != nil {
		fail(c, err)
		return
	}
	summary := sess.Summary()

	runID := ""
	if s.store != nil {
		run, err := s.store.SaveRun(req.Spec, req.Plan, len(summary.Segments), summary.TotalDurationS, summary.Absolute)
		if err != nil {
			s.log.Error("save run", slog.String("error", err.Error()))
		} else {
			runID = run.ID
		}
	}
	s.lastRunID = runID
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "route": summary, "timeline": sess.Timeline})
}

func (s *Server) handleSegments(c *gin.Context) {
	s.mu.Lock()
	segs, err := s.engine.Segments()
	s.mu.Unlock()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"segments": segs})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hud, err := s.engine.HUD()
	if err != nil {
		fail(c, err)
		return
	}
	pose, _ := s.engine.Pose()
	cursor, _ := s.engine.Cursor()
	done, _ := s.engine.SegmentsCompleted()
	c.JSON(http.StatusOK, gin.H{"hud": hud, "pose": pose, "cursor": cursor, "segments_completed": done})
}

func (s *Server) handleCrossCheck(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := validation.ParseReport(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tol := validation.DefaultTolerance
	if q := c.Query("tolerance"); q != "" {
		if tol, err = strconv.ParseFloat(q, 64); err != nil || !(tol > 0) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tolerance must be a positive number"})
			return
		}
	}

	s.mu.Lock()
	mismatches, err := s.engine.CrossCheck(report, tol)
	s.mu.Unlock()
	if err != nil {
		fail(c, err)
		return
	}
	if mismatches == nil {
		mismatches = []validation.Mismatch{}
	}
	c.JSON(http.StatusOK, gin.H{"agree": len(mismatches) == 0, "mismatches": mismatches})
}

// control runs fn under the lock and answers with the fresh HUD, which the
// player publishes immediately on every control.
func (s *Server) control(c *gin.Context, fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(); err != nil {
		fail(c, err)
		return
	}
	hud, err := s.engine.HUD()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hud": hud})
}

func (s *Server) handlePlay(c *gin.Context)  { s.control(c, s.engine.Play) }
func (s *Server) handlePause(c *gin.Context) { s.control(c, s.engine.Pause) }

func (s *Server) handleSeek(c *gin.Context) {
	var req struct {
		T *float64 `json:"t" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.control(c, func() error { return s.engine.Seek(*req.T) })
}

func (s *Server) handleStep(c *gin.Context) {
	var req struct {
		Index *int `json:"index" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.control(c, func() error { return s.engine.StepToSegment(*req.Index) })
}

func (s *Server) handleSpeed(c *gin.Context) {
	var req struct {
		Speed *float64 `json:"speed" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.control(c, func() error { return s.engine.SetSpeed(*req.Speed) })
}

func (s *Server) handleFollow(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.control(c, func() error { return s.engine.SetFollow(*req.Enabled) })
}

func (s *Server) handleGetCamera(c *gin.Context) {
	if s.store == nil {
		fail(c, errNoStore)
		return
	}
	pose, err := s.store.GetCameraPose(c.Param("view"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pose)
}

// handlePutCamera remembers a pose for the view. When a route is loaded and
// follow mode is off, the pose is also applied to the live observer.
func (s *Server) handlePutCamera(c *gin.Context) {
	if s.store == nil {
		fail(c, errNoStore)
		return
	}
	var pose observer.Pose
	if err := c.ShouldBindJSON(&pose); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.PutCameraPose(c.Param("view"), pose); err != nil {
		fail(c, err)
		return
	}

	applied := false
	s.mu.Lock()
	if sess := s.engine.Session(); sess != nil && !sess.Following() {
		applied = s.engine.SetPose(pose) == nil
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"view": c.Param("view"), "pose": pose, "applied": applied})
}
