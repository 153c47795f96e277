package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/spacetime-engine/internal/geom"
	"github.com/cxd309/spacetime-engine/internal/observer"
	"github.com/cxd309/spacetime-engine/internal/validation"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveRun(t *testing.T) {
	s := newTestStore(t)
	spec := map[string]any{"states": []string{"A", "B"}}
	plan := map[string]any{"ok": true, "path": []string{"A", "B"}}

	r, err := s.SaveRun(spec, plan, 1, 175, true)
	require.NoError(t, err)
	_, err = uuid.Parse(r.ID)
	require.NoError(t, err)

	got, err := s.GetRun(r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, 1, got.Segments)
	assert.Equal(t, 175.0, got.TotalDurationS)
	assert.True(t, got.Absolute)
	assert.JSONEq(t, `{"ok": true, "path": ["A", "B"]}`, string(got.Plan))
	assert.WithinDuration(t, r.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun("nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.LatestRun()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	var ids []string
	for i := 0; i < 3; i++ {
		r, err := s.SaveRun(i, i, i, float64(i), false)
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	runs, err := s.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)

	latest, err := s.LatestRun()
	require.NoError(t, err)
	assert.Equal(t, ids[2], latest.ID)

	n, err := s.CountRuns()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSaveValidation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LatestValidation()
	assert.ErrorIs(t, err, ErrNotFound)

	report := validation.Report{
		Edges: []validation.EdgeReport{{
			Src: "A", Dst: "B",
			Breakdown:    validation.Breakdown{DilationFactor: 1.342, Warnings: []string{"w"}},
			WarningCount: 1,
		}},
		Summary: validation.Summary{TotalWarnings: 1, EdgesWithWarnings: 1, EdgeCount: 1},
	}
	id, err := s.SaveValidation("run-1", report)
	require.NoError(t, err)
	assert.Positive(t, id)

	rec, err := s.LatestValidation()
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, report, rec.Report)

	_, err = s.SaveValidation("", validation.Report{})
	require.NoError(t, err)
	rec, err = s.LatestValidation()
	require.NoError(t, err)
	assert.Empty(t, rec.RunID)
}

func TestCameraPose_Upsert(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetCameraPose("main")
	assert.ErrorIs(t, err, ErrNotFound)

	p1 := observer.Pose{Position: geom.Vec3{X: 1, Y: 2, Z: 3}, Target: geom.Vec3{}}
	require.NoError(t, s.PutCameraPose("main", p1))
	p2 := observer.Pose{Position: geom.Vec3{Y: 9}, Target: geom.Vec3{X: 1}}
	require.NoError(t, s.PutCameraPose("main", p2))

	got, err := s.GetCameraPose("main")
	require.NoError(t, err)
	assert.Equal(t, p2, got)
}

func TestBackoff_RetriesOnlyTransientErrors(t *testing.T) {
	b := backoff{attempts: 3, base: time.Millisecond, cap: 2 * time.Millisecond}

	calls := 0
	err := b.do(func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("insert run: %w", errors.New("database is locked (5) (SQLITE_BUSY)"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = b.do(func() error {
		calls++
		return errors.New("database is locked (5) (SQLITE_BUSY)")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls, "gives up after the configured attempts")

	calls = 0
	err = b.do(func() error {
		calls++
		return errors.New("UNIQUE constraint failed")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "non-transient errors are not retried")

	assert.False(t, transient(nil))
}

func TestBackoff_DelayStaysInUpperHalf(t *testing.T) {
	b := backoff{attempts: 4, base: 4 * time.Millisecond, cap: 16 * time.Millisecond}
	for n, ceiling := range []time.Duration{4, 8, 16, 16, 16} {
		ceiling *= time.Millisecond
		for i := 0; i < 20; i++ {
			d := b.delay(n)
			assert.GreaterOrEqual(t, d, ceiling/2, "attempt %d", n)
			assert.LessOrEqual(t, d, ceiling, "attempt %d", n)
		}
	}
}
