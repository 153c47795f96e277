// Package store persists run history, validation summaries and remembered
// camera poses in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/cxd309/spacetime-engine/internal/observer"
	"github.com/cxd309/spacetime-engine/internal/validation"
)

var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	spec_json        TEXT NOT NULL,
	plan_json        TEXT NOT NULL,
	segments         INTEGER NOT NULL,
	total_duration_s REAL NOT NULL,
	absolute         INTEGER NOT NULL,
	created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS validations (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id              TEXT,
	edge_count          INTEGER NOT NULL,
	total_warnings      INTEGER NOT NULL,
	edges_with_warnings INTEGER NOT NULL,
	report_json         TEXT NOT NULL,
	created_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS camera_poses (
	view       TEXT PRIMARY KEY,
	pose_json  TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// Run is one loaded (spec, plan) pair and the shape of the route built from it.
type Run struct {
	ID             string          `json:"id"`
	Spec           json.RawMessage `json:"spec"`
	Plan           json.RawMessage `json:"plan"`
	Segments       int             `json:"segments"`
	TotalDurationS float64         `json:"total_duration_s"`
	Absolute       bool            `json:"absolute"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ValidationRecord is a stored validation report.
type ValidationRecord struct {
	ID        int64             `json:"id"`
	RunID     string            `json:"run_id,omitempty"`
	Report    validation.Report `json:"report"`
	CreatedAt time.Time         `json:"created_at"`
}

// Store manages the SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database and initializes the schema.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// SaveRun records a run under a fresh UUID. spec and plan are stored as JSON.
func (s *Store) SaveRun(spec, plan any, segments int, totalDurationS float64, absolute bool) (Run, error) {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return Run{}, fmt.Errorf("marshal spec: %w", err)
	}
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return Run{}, fmt.Errorf("marshal plan: %w", err)
	}
	r := Run{
		ID:             uuid.New().String(),
		Spec:           specJSON,
		Plan:           planJSON,
		Segments:       segments,
		TotalDurationS: totalDurationS,
		Absolute:       absolute,
		CreatedAt:      time.Now().UTC(),
	}
	err = writeRetry.do(func() error {
		_, err := s.db.Exec(
			`INSERT INTO runs (id, spec_json, plan_json, segments, total_duration_s, absolute, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, string(specJSON), string(planJSON), segments, totalDurationS, boolToInt(absolute),
			r.CreatedAt.Format(time.RFC3339Nano),
		)
		return err
	})
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return r, nil
}

const runColumns = `id, spec_json, plan_json, segments, total_duration_s, absolute, created_at`

// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (Run, error) {
	return scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
}

// LatestRun returns the most recently saved run.
func (s *Store) LatestRun() (Run, error) {
	return scanRun(s.db.QueryRow(`SELECT ` + runColumns + ` FROM runs ORDER BY rowid DESC LIMIT 1`))
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountRuns returns the number of stored runs.
func (s *Store) CountRuns() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r                  Run
		specJSON, planJSON string
		absolute           int
		created            string
	)
	err := sc.Scan(&r.ID, &specJSON, &planJSON, &r.Segments, &r.TotalDurationS, &absolute, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run: %w", ErrNotFound)
	}
	if err != nil {
		return Run{}, err
	}
	r.Spec = json.RawMessage(specJSON)
	r.Plan = json.RawMessage(planJSON)
	r.Absolute = absolute != 0
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return r, nil
}

// ---------------------------------------------------------------------------
// Validations
// ---------------------------------------------------------------------------

// SaveValidation stores a validation report, optionally tied to a run.
func (s *Store) SaveValidation(runID string, report validation.Report) (int64, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("marshal report: %w", err)
	}
	var id int64
	err = writeRetry.do(func() error {
		res, err := s.db.Exec(
			`INSERT INTO validations (run_id, edge_count, total_warnings, edges_with_warnings, report_json, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			nullString(runID), report.Summary.EdgeCount, report.Summary.TotalWarnings,
			report.Summary.EdgesWithWarnings, string(data), time.Now().UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert validation: %w", err)
	}
	return id, nil
}

// LatestValidation returns the most recently stored validation report.
func (s *Store) LatestValidation() (ValidationRecord, error) {
	var (
		rec     ValidationRecord
		runID   sql.NullString
		data    string
		created string
	)
	err := s.db.QueryRow(
		`SELECT id, run_id, report_json, created_at FROM validations ORDER BY id DESC LIMIT 1`,
	).Scan(&rec.ID, &runID, &data, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return ValidationRecord{}, fmt.Errorf("validation: %w", ErrNotFound)
	}
	if err != nil {
		return ValidationRecord{}, err
	}
	if err := json.Unmarshal([]byte(data), &rec.Report); err != nil {
		return ValidationRecord{}, fmt.Errorf("decode report: %w", err)
	}
	rec.RunID = runID.String
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return rec, nil
}

// ---------------------------------------------------------------------------
// Camera poses
// ---------------------------------------------------------------------------

// PutCameraPose remembers the observer pose for a named view.
func (s *Store) PutCameraPose(view string, pose observer.Pose) error {
	data, err := json.Marshal(pose)
	if err != nil {
		return fmt.Errorf("marshal pose: %w", err)
	}
	return writeRetry.do(func() error {
		_, err := s.db.Exec(
			`INSERT INTO camera_poses (view, pose_json, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(view) DO UPDATE SET pose_json = excluded.pose_json, updated_at = excluded.updated_at`,
			view, string(data), time.Now().UTC().Format(time.RFC3339Nano),
		)
		return err
	})
}

// GetCameraPose returns the remembered pose for view.
func (s *Store) GetCameraPose(view string) (observer.Pose, error) {
	var data string
	err := s.db.QueryRow(`SELECT pose_json FROM camera_poses WHERE view = ?`, view).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return observer.Pose{}, fmt.Errorf("camera pose %q: %w", view, ErrNotFound)
	}
	if err != nil {
		return observer.Pose{}, err
	}
	var p observer.Pose
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return observer.Pose{}, fmt.Errorf("decode pose: %w", err)
	}
	return p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
