// Package geocent converts between geodetic (longitude, latitude, height)
// and earth-centred cartesian (X, Y, Z) coordinates on a spheroid.
package geocent

import (
	"math"

	"github.com/pspoerri/reproject/internal/coord"
)

const (
	halfPi = math.Pi / 2

	// genau is the convergence criterion on sin(dphi), about 2e-7 arc-seconds.
	genau   = 1e-12
	genau2  = genau * genau
	maxIter = 30
)

// Converter converts coordinates on one spheroid given by its equatorial
// radius and eccentricity squared.
type Converter struct {
	a, b, es float64
}

// New returns a converter for the spheroid with equatorial radius a and
// eccentricity squared es.
func New(a, es float64) Converter {
	return Converter{a: a, b: a * math.Sqrt(1-es), es: es}
}

// ForSpheroid returns a converter for s.
func ForSpheroid(s coord.Spheroid) Converter {
	return New(s.EquatorialRadius, s.Es())
}

// ToGeocentric converts longitude and latitude in radians and ellipsoidal
// height in meters. Latitudes slightly beyond the poles are clamped; ok is
// false when the latitude is out of range.
func (c Converter) ToGeocentric(lam, phi, h float64) (x, y, z float64, ok bool) {
	switch {
	case phi < -halfPi && phi > -1.001*halfPi:
		phi = -halfPi
	case phi > halfPi && phi < 1.001*halfPi:
		phi = halfPi
	case phi < -halfPi || phi > halfPi || math.IsNaN(phi):
		return 0, 0, 0, false
	}
	if lam > math.Pi {
		lam -= 2 * math.Pi
	}
	sinPhi, cosPhi := math.Sincos(phi)
	sinLam, cosLam := math.Sincos(lam)
	rn := c.a / math.Sqrt(1-c.es*sinPhi*sinPhi)
	x = (rn + h) * cosPhi * cosLam
	y = (rn + h) * cosPhi * sinLam
	z = (rn*(1-c.es) + h) * sinPhi
	return x, y, z, true
}

// ToGeodetic converts geocentric X, Y, Z in meters to longitude, latitude
// (radians) and height (meters) using the iterative method of the Institut
// fuer Erdmessung, Hannover.
func (c Converter) ToGeodetic(x, y, z float64) (lam, phi, h float64) {
	p := math.Hypot(x, y)
	rr := math.Sqrt(x*x + y*y + z*z)

	if p/c.a < genau {
		// On the polar axis.
		lam = 0
		if rr/c.a < genau {
			// Earth centre.
			return 0, halfPi, -c.b
		}
	} else {
		lam = math.Atan2(y, x)
	}

	ct := z / rr
	st := p / rr
	rx := 1 / math.Sqrt(1-c.es*(2-c.es)*st*st)
	cphi0 := st * (1 - c.es) * rx
	sphi0 := ct * rx

	var cphi, sphi float64
	for iter := 1; ; iter++ {
		rn := c.a / math.Sqrt(1-c.es*sphi0*sphi0)
		h = p*cphi0 + z*sphi0 - rn*(1-c.es*sphi0*sphi0)

		rk := c.es * rn / (rn + h)
		rx = 1 / math.Sqrt(1-rk*(2-rk)*st*st)
		cphi = st * (1 - rk) * rx
		sphi = ct * rx
		sdphi := sphi*cphi0 - cphi*sphi0
		cphi0, sphi0 = cphi, sphi
		if sdphi*sdphi <= genau2 || iter >= maxIter {
			break
		}
	}
	phi = math.Atan(sphi / math.Abs(cphi))
	return lam, phi, h
}

// GeodeticToGeocentric converts the points [start, start+n) in place: xy
// holds longitude/latitude in radians and z ellipsoidal heights, and on
// return they hold X, Y and Z. Points with an out of range latitude are
// marked undefined.
func (c Converter) GeodeticToGeocentric(xy, z []float64, start, n int) {
	for i := start; i < start+n; i++ {
		if coord.IsUndefined(xy, i) {
			continue
		}
		x, y, zz, ok := c.ToGeocentric(xy[2*i], xy[2*i+1], z[i])
		if !ok {
			coord.SetUndefined(xy, i)
			continue
		}
		xy[2*i], xy[2*i+1], z[i] = x, y, zz
	}
}

// GeocentricToGeodetic is the inverse of GeodeticToGeocentric.
func (c Converter) GeocentricToGeodetic(xy, z []float64, start, n int) {
	for i := start; i < start+n; i++ {
		if coord.IsUndefined(xy, i) {
			continue
		}
		xy[2*i], xy[2*i+1], z[i] = c.ToGeodetic(xy[2*i], xy[2*i+1], z[i])
	}
}
