package coord

import "math"

// Mercator implements the normal aspect Mercator projection on the
// ellipsoid, or on the sphere when the spheroid has no eccentricity or the
// projection is forced spherical (Web Mercator).
type Mercator struct {
	k0        float64
	e         float64
	spherical bool
}

// NewMercator returns a Mercator projection. A non-zero latTS (latitude of
// true scale, radians) overrides k0; a zero k0 means 1.
func NewMercator(sph Spheroid, k0, latTS float64) *Mercator {
	m := &Mercator{k0: k0, e: sph.E(), spherical: sph.IsSphere()}
	if latTS != 0 {
		sin, cos := math.Sincos(latTS)
		if m.spherical {
			m.k0 = cos
		} else {
			m.k0 = msfnz(m.e, sin, cos)
		}
	}
	if m.k0 == 0 {
		m.k0 = 1
	}
	return m
}

// NewWebMercator returns the spherical Mercator used by EPSG:3857. The
// formulas ignore eccentricity even when the datum is WGS84.
func NewWebMercator() *Mercator {
	return &Mercator{k0: 1, spherical: true}
}

func (m *Mercator) Name() string {
	if m.spherical {
		return "Mercator (spherical)"
	}
	return "Mercator"
}

// Forward projects normalized longitude/latitude to x/a, y/a.
func (m *Mercator) Forward(xy []float64, start, n int) error {
	eachPoint(xy, start, n, func(lam, phi float64) (float64, float64, bool) {
		if math.Abs(math.Abs(phi)-halfPi) <= epsln {
			return 0, 0, false
		}
		x := m.k0 * lam
		if m.spherical {
			return x, m.k0 * math.Log(math.Tan(math.Pi/4+0.5*phi)), true
		}
		ts := tsfnz(m.e, phi, math.Sin(phi))
		return x, -m.k0 * math.Log(ts), true
	})
	return nil
}

// Inverse maps x/a, y/a back to normalized longitude/latitude.
func (m *Mercator) Inverse(xy []float64, start, n int) error {
	eachPoint(xy, start, n, func(x, y float64) (float64, float64, bool) {
		var phi float64
		if m.spherical {
			phi = halfPi - 2*math.Atan(math.Exp(-y/m.k0))
		} else {
			phi = phi2z(m.e, math.Exp(-y/m.k0))
		}
		return x / m.k0, phi, true
	})
	return nil
}
