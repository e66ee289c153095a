package gridshift

import (
	"math"

	"github.com/pspoerri/reproject/internal/coord"
)

const (
	inverseMaxIter = 9
	inverseTol     = 1e-12
)

// Interpolate returns the bilinearly interpolated shift at p, given
// relative to the table's south-west node in radians. ok is false outside
// the grid. Points a hair outside the first or last node are snapped onto
// the edge.
func (t *Table) Interpolate(p coord.PhiLam) (shift coord.PhiLam, ok bool) {
	lam := p.Lambda / t.CellSize.Lambda
	phi := p.Phi / t.CellSize.Phi
	if math.IsNaN(lam) || math.IsNaN(phi) || math.IsInf(lam, 0) || math.IsInf(phi, 0) {
		return coord.PhiLam{}, false
	}
	ilam, flam, ok := cellIndex(lam, t.NumLambdas)
	if !ok {
		return coord.PhiLam{}, false
	}
	iphi, fphi, ok := cellIndex(phi, t.NumPhis)
	if !ok {
		return coord.PhiLam{}, false
	}

	idx := iphi*t.NumLambdas + ilam
	f00 := t.Cells[idx]
	f10 := t.Cells[idx+1]
	f01 := t.Cells[idx+t.NumLambdas]
	f11 := t.Cells[idx+t.NumLambdas+1]

	m00 := (1 - flam) * (1 - fphi)
	m10 := flam * (1 - fphi)
	m01 := (1 - flam) * fphi
	m11 := flam * fphi

	shift.Lambda = m00*f00.Lambda + m10*f10.Lambda + m01*f01.Lambda + m11*f11.Lambda
	shift.Phi = m00*f00.Phi + m10*f10.Phi + m01*f01.Phi + m11*f11.Phi
	return shift, true
}

// cellIndex splits a coordinate in cell units into the index of the cell's
// lower node and the fraction within the cell.
func cellIndex(v float64, lim int) (int, float64, bool) {
	fl := math.Floor(v)
	frac := v - fl
	if fl < -1 || fl >= float64(lim) {
		return 0, 0, false
	}
	i := int(fl)
	switch {
	case i < 0:
		if i == -1 && frac > 0.99999999999 {
			return 0, 0, true
		}
		return 0, 0, false
	case i+1 >= lim:
		if i+1 == lim && frac < 1e-11 {
			return i - 1, 1, true
		}
		return 0, 0, false
	}
	return i, frac, true
}

// normalize expresses p relative to the south-west node, with the
// longitude difference wrapped into [0, 2pi].
func (t *Table) normalize(p coord.PhiLam) coord.PhiLam {
	rel := coord.PhiLam{
		Lambda: p.Lambda - t.LowerLeft.Lambda,
		Phi:    p.Phi - t.LowerLeft.Phi,
	}
	rel.Lambda = coord.Adjlon(rel.Lambda-math.Pi) + math.Pi
	return rel
}

// Shift applies the table to p (forward direction, e.g. NAD27 to NAD83).
func (t *Table) Shift(p coord.PhiLam) (coord.PhiLam, bool) {
	d, ok := t.Interpolate(t.normalize(p))
	if !ok {
		return p, false
	}
	return coord.PhiLam{Lambda: p.Lambda - d.Lambda, Phi: p.Phi + d.Phi}, true
}

// Unshift inverts Shift by fixed-point iteration, seeded with the forward
// estimate. If the iteration steps off the grid the best estimate so far
// is returned. converged is false when the iteration limit was reached;
// the last estimate is still returned, with the residual.
func (t *Table) Unshift(p coord.PhiLam) (out coord.PhiLam, converged bool, residual float64, ok bool) {
	tb := t.normalize(p)
	d, ok := t.Interpolate(tb)
	if !ok {
		return p, false, 0, false
	}
	est := coord.PhiLam{Lambda: tb.Lambda + d.Lambda, Phi: tb.Phi - d.Phi}

	converged = false
	for i := 0; i < inverseMaxIter; i++ {
		del, inside := t.Interpolate(est)
		if !inside {
			converged = true
			residual = 0
			break
		}
		dif := coord.PhiLam{
			Lambda: est.Lambda - del.Lambda - tb.Lambda,
			Phi:    est.Phi + del.Phi - tb.Phi,
		}
		est.Lambda -= dif.Lambda
		est.Phi -= dif.Phi
		residual = math.Max(math.Abs(dif.Lambda), math.Abs(dif.Phi))
		if residual <= inverseTol {
			converged = true
			break
		}
	}

	out = coord.PhiLam{
		Lambda: coord.Adjlon(est.Lambda + t.LowerLeft.Lambda),
		Phi:    est.Phi + t.LowerLeft.Phi,
	}
	return out, converged, residual, true
}
