package store

import (
	"github.com/cxd309/spacetime-engine/internal/observer"
	"github.com/cxd309/spacetime-engine/internal/validation"
)

// StoreInterface is the set of store operations the HTTP server depends on.
type StoreInterface interface {
	Close() error

	SaveRun(spec, plan any, segments int, totalDurationS float64, absolute bool) (Run, error)
	GetRun(id string) (Run, error)
	LatestRun() (Run, error)
	ListRuns(limit int) ([]Run, error)
	CountRuns() (int64, error)

	SaveValidation(runID string, report validation.Report) (int64, error)
	LatestValidation() (ValidationRecord, error)

	PutCameraPose(view string, pose observer.Pose) error
	GetCameraPose(view string) (observer.Pose, error)
}

var _ StoreInterface = (*Store)(nil)
