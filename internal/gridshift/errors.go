package gridshift

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrMissingGridCoverage means no listed grid covers a point.
	ErrMissingGridCoverage = errors.New("point outside all grid-shift tables")
	// ErrInverseShiftDidNotConverge means the inverse grid shift ran out of
	// iterations before reaching the tolerance.
	ErrInverseShiftDidNotConverge = errors.New("inverse grid shift did not converge")
	// ErrGridNotFound means a required grid file is not on any search path.
	ErrGridNotFound = errors.New("grid file not found")
	// ErrInvalidGrid means a grid file could not be decoded.
	ErrInvalidGrid = errors.New("invalid grid file")
)

// CoverageError reports a point that no grid covers.
type CoverageError struct {
	Index  int
	Lambda float64 // radians
	Phi    float64 // radians
	Grids  []string
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("point %d (%.8f, %.8f): %v [%s]",
		e.Index, e.Lambda*180/math.Pi, e.Phi*180/math.Pi, ErrMissingGridCoverage, strings.Join(e.Grids, ","))
}

func (e *CoverageError) Is(target error) bool { return target == ErrMissingGridCoverage }

// ConvergenceError reports an inverse shift that stopped at the iteration
// limit. The point keeps the last estimate.
type ConvergenceError struct {
	Index    int
	Lambda   float64 // radians
	Phi      float64 // radians
	Grid     string
	Residual float64 // radians, larger of the two axes
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("point %d (%.8f, %.8f) in grid %s: %v (residual %.3g rad)",
		e.Index, e.Lambda*180/math.Pi, e.Phi*180/math.Pi, e.Grid, ErrInverseShiftDidNotConverge, e.Residual)
}

func (e *ConvergenceError) Is(target error) bool { return target == ErrInverseShiftDidNotConverge }

// WarningKind classifies a non-fatal condition raised while shifting points.
type WarningKind int

const (
	WarnMissingCoverage WarningKind = iota
	WarnNotConverged
)

func (k WarningKind) String() string {
	switch k {
	case WarnMissingCoverage:
		return "missing_grid_coverage"
	case WarnNotConverged:
		return "inverse_not_converged"
	default:
		return fmt.Sprintf("WarningKind(%d)", int(k))
	}
}

// Warning is a per-point condition that did not abort the call.
type Warning struct {
	Kind  WarningKind
	Index int
	Err   error
}

// Report collects the warnings raised by one call. A nil *Report is valid
// and empty.
type Report struct {
	Warnings []Warning
}

func (r *Report) add(kind WarningKind, index int, err error) {
	r.Warnings = append(r.Warnings, Warning{Kind: kind, Index: index, Err: err})
}

// Merge appends o's warnings to r.
func (r *Report) Merge(o *Report) {
	if o == nil {
		return
	}
	r.Warnings = append(r.Warnings, o.Warnings...)
}

// Count returns the number of warnings of the given kind.
func (r *Report) Count(kind WarningKind) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, w := range r.Warnings {
		if w.Kind == kind {
			n++
		}
	}
	return n
}

// Empty reports whether no warnings were raised.
func (r *Report) Empty() bool { return r == nil || len(r.Warnings) == 0 }
