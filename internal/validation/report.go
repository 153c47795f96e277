// Package validation builds per-edge kinematic reports and cross-checks them
// against reports produced by an external validator.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/cxd309/spacetime-engine/internal/graph"
	"github.com/cxd309/spacetime-engine/internal/kinematics"
)

// DefaultTolerance is the relative tolerance used by CrossCheck when none is given.
const DefaultTolerance = 1e-6

// Breakdown is the per-edge kinematic summary.
type Breakdown struct {
	VelocityFractionC float64  `json:"velocity_fraction_c"`
	DilationFactor    float64  `json:"dilation_factor"`
	DurationS         float64  `json:"duration_s"`
	ProperTimeS       float64  `json:"proper_time_s"`
	RiskProb          float64  `json:"risk_prob"`
	Warnings          []string `json:"warnings"`
}

// UnmarshalJSON also accepts the validator's older "gamma" and "crew_time_s" keys.
func (b *Breakdown) UnmarshalJSON(data []byte) error {
	type plain Breakdown
	var aux struct {
		plain
		Gamma     *float64 `json:"gamma"`
		CrewTimeS *float64 `json:"crew_time_s"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*b = Breakdown(aux.plain)
	if b.DilationFactor == 0 && aux.Gamma != nil {
		b.DilationFactor = *aux.Gamma
	}
	if b.ProperTimeS == 0 && aux.CrewTimeS != nil {
		b.ProperTimeS = *aux.CrewTimeS
	}
	return nil
}

// EdgeReport is one row of a validation report.
type EdgeReport struct {
	Src          graph.NodeID `json:"src"`
	Dst          graph.NodeID `json:"dst"`
	Weight       *float64     `json:"weight,omitempty"`
	Breakdown    Breakdown    `json:"breakdown"`
	WarningCount int          `json:"warning_count"`
}

type Summary struct {
	TotalWarnings     int `json:"total_warnings"`
	EdgesWithWarnings int `json:"edges_with_warnings"`
	EdgeCount         int `json:"edge_count"`
}

type Report struct {
	Edges   []EdgeReport `json:"edges"`
	Summary Summary      `json:"summary"`
}

// ParseReport decodes either a full report object or a bare array of edge rows.
func ParseReport(data []byte) (Report, error) {
	data = bytes.TrimSpace(data)
	var r Report
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &r.Edges); err != nil {
			return Report{}, fmt.Errorf("decode report rows: %w", err)
		}
	} else if err := json.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	for i := range r.Edges {
		r.Edges[i].WarningCount = len(r.Edges[i].Breakdown.Warnings)
	}
	r.Summary = Summarize(r.Edges)
	return r, nil
}

// BreakdownOf computes the breakdown for one edge.
func BreakdownOf(e graph.Edge) Breakdown {
	k := kinematics.Compute(e.Attributes)
	b := Breakdown{
		VelocityFractionC: k.VelocityFractionC,
		DilationFactor:    k.DilationFactor,
		DurationS:         k.DurationS,
		ProperTimeS:       k.ProperTimeS,
		Warnings:          kinematics.Warnings(e.Attributes, k),
	}
	if e.Attributes.RiskProb != nil {
		b.RiskProb = *e.Attributes.RiskProb
	}
	if b.Warnings == nil {
		b.Warnings = []string{}
	}
	return b
}

// Build reports every edge of g in declaration order. With warnedOnly set,
// edges without warnings are left out and the summary covers the rest.
func Build(g *graph.Graph, warnedOnly bool) Report {
	var r Report
	r.Edges = []EdgeReport{}
	for _, e := range g.Edges() {
		b := BreakdownOf(e)
		if warnedOnly && len(b.Warnings) == 0 {
			continue
		}
		r.Edges = append(r.Edges, EdgeReport{
			Src:          e.Src,
			Dst:          e.Dst,
			Breakdown:    b,
			WarningCount: len(b.Warnings),
		})
	}
	r.Summary = Summarize(r.Edges)
	return r
}

func Summarize(edges []EdgeReport) Summary {
	s := Summary{EdgeCount: len(edges)}
	for _, e := range edges {
		s.TotalWarnings += e.WarningCount
		if e.WarningCount > 0 {
			s.EdgesWithWarnings++
		}
	}
	return s
}

// Mismatch records one field that disagrees between an external report and
// the locally computed kinematics.
type Mismatch struct {
	Src      graph.NodeID `json:"src"`
	Dst      graph.NodeID `json:"dst"`
	Field    string       `json:"field"`
	External float64      `json:"external"`
	Computed float64      `json:"computed"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s→%s %s: external %g, computed %g", m.Src, m.Dst, m.Field, m.External, m.Computed)
}

// CrossCheck compares every row of report against g. Values agree when
// |a−b| ≤ tol·max(1, |a|, |b|). A row naming an edge absent from g fails with
// graph.ErrMissingEdge.
func CrossCheck(g *graph.Graph, report Report, tol float64) ([]Mismatch, error) {
	if !(tol > 0) {
		tol = DefaultTolerance
	}
	var out []Mismatch
	for _, row := range report.Edges {
		e, err := g.GetEdge(row.Src, row.Dst)
		if err != nil {
			return nil, err
		}
		own := BreakdownOf(e)
		for _, f := range []struct {
			name      string
			ext, comp float64
		}{
			{"velocity_fraction_c", row.Breakdown.VelocityFractionC, own.VelocityFractionC},
			{"dilation_factor", row.Breakdown.DilationFactor, own.DilationFactor},
			{"duration_s", row.Breakdown.DurationS, own.DurationS},
			{"proper_time_s", row.Breakdown.ProperTimeS, own.ProperTimeS},
		} {
			if !agree(f.ext, f.comp, tol) {
				out = append(out, Mismatch{Src: row.Src, Dst: row.Dst, Field: f.name, External: f.ext, Computed: f.comp})
			}
		}
	}
	return out, nil
}

func agree(a, b, tol float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= tol*scale
}
