package datum

import (
	"sync"

	"github.com/golang/geo/s1"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/pspoerri/reproject/internal/coord"
)

// Helmert is a 3 or 7 parameter similarity transformation between a
// datum's geocentric frame and WGS84:
//
//	X_wgs84 = M*R*X + T
//
// with R the small-angle rotation matrix and M = 1 + ds*1e-6. The reverse
// direction uses the exact inverse of M*R.
type Helmert struct {
	T   [3]float64
	MR  [3][3]float64
	Inv [3][3]float64
	// Translation only, MR and Inv are the identity.
	translation bool
}

var helmertCache sync.Map // [7]float64 -> *Helmert

// HelmertFor returns the transformation of a Param3 or Param7 datum.
func HelmertFor(d coord.Datum) (*Helmert, error) {
	switch d.Type {
	case coord.DatumParam3, coord.DatumParam7:
	default:
		return nil, errors.Errorf("datum %q (%s) has no Helmert parameters", d.Name, d.Type)
	}
	key := d.ToWGS84
	if d.Type == coord.DatumParam3 {
		key[3], key[4], key[5], key[6] = 0, 0, 0, 0
	}
	if h, ok := helmertCache.Load(key); ok {
		return h.(*Helmert), nil
	}
	h, err := NewHelmert(key)
	if err != nil {
		return nil, errors.Wrapf(err, "datum %q", d.Name)
	}
	actual, _ := helmertCache.LoadOrStore(key, h)
	return actual.(*Helmert), nil
}

// NewHelmert builds a transformation from dx, dy, dz (meters), rx, ry, rz
// (arc-seconds) and ds (ppm).
func NewHelmert(p [7]float64) (*Helmert, error) {
	h := &Helmert{T: [3]float64{p[0], p[1], p[2]}}
	if p[3] == 0 && p[4] == 0 && p[5] == 0 && p[6] == 0 {
		h.translation = true
		h.MR = [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
		h.Inv = h.MR
		return h, nil
	}

	sec := func(v float64) float64 { return (s1.Angle(v) * s1.Degree / 3600).Radians() }
	rx, ry, rz := sec(p[3]), sec(p[4]), sec(p[5])
	m := 1 + p[6]*1e-6

	mr := mat.NewDense(3, 3, []float64{
		1, -rz, ry,
		rz, 1, -rx,
		-ry, rx, 1,
	})
	mr.Scale(m, mr)
	var inv mat.Dense
	if err := inv.Inverse(mr); err != nil {
		return nil, errors.Wrap(err, "inverting Helmert rotation")
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h.MR[i][j] = mr.At(i, j)
			h.Inv[i][j] = inv.At(i, j)
		}
	}
	return h, nil
}

// ToWGS84 converts a geocentric position in the datum's frame to WGS84.
func (h *Helmert) ToWGS84(x, y, z float64) (float64, float64, float64) {
	if h.translation {
		return x + h.T[0], y + h.T[1], z + h.T[2]
	}
	m := &h.MR
	return m[0][0]*x + m[0][1]*y + m[0][2]*z + h.T[0],
		m[1][0]*x + m[1][1]*y + m[1][2]*z + h.T[1],
		m[2][0]*x + m[2][1]*y + m[2][2]*z + h.T[2]
}

// FromWGS84 is the inverse of ToWGS84.
func (h *Helmert) FromWGS84(x, y, z float64) (float64, float64, float64) {
	x, y, z = x-h.T[0], y-h.T[1], z-h.T[2]
	if h.translation {
		return x, y, z
	}
	m := &h.Inv
	return m[0][0]*x + m[0][1]*y + m[0][2]*z,
		m[1][0]*x + m[1][1]*y + m[1][2]*z,
		m[2][0]*x + m[2][1]*y + m[2][2]*z
}
