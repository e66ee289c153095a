package coord

import (
	"math"

	"gonum.org/v1/gonum/floats/scalar"
)

// Spheroid is a reference ellipsoid given by its equatorial radius and
// inverse flattening. An InverseFlattening of 0 describes a sphere.
type Spheroid struct {
	Name              string
	EquatorialRadius  float64 // a, meters
	InverseFlattening float64 // 1/f, 0 for a sphere
}

// Reference spheroids used by the built-in descriptors.
var (
	WGS84Spheroid       = Spheroid{Name: "WGS84", EquatorialRadius: 6378137, InverseFlattening: 298.257223563}
	GRS80Spheroid       = Spheroid{Name: "GRS80", EquatorialRadius: 6378137, InverseFlattening: 298.257222101}
	Clarke1866Spheroid  = Spheroid{Name: "Clarke 1866", EquatorialRadius: 6378206.4, InverseFlattening: 294.978698213898}
	Bessel1841Spheroid  = Spheroid{Name: "Bessel 1841", EquatorialRadius: 6377397.155, InverseFlattening: 299.1528128}
	Airy1830Spheroid    = Spheroid{Name: "Airy 1830", EquatorialRadius: 6377563.396, InverseFlattening: 299.3249646}
	International1924   = Spheroid{Name: "International 1924", EquatorialRadius: 6378388, InverseFlattening: 297}
	WebMercatorSpheroid = Spheroid{Name: "Popular Visualisation Sphere", EquatorialRadius: 6378137}
)

// SpheroidByName looks up one of the reference spheroids by its short name.
func SpheroidByName(name string) (Spheroid, bool) {
	switch name {
	case "WGS84", "wgs84":
		return WGS84Spheroid, true
	case "GRS80", "grs80":
		return GRS80Spheroid, true
	case "clrk66", "Clarke 1866":
		return Clarke1866Spheroid, true
	case "bessel", "Bessel 1841":
		return Bessel1841Spheroid, true
	case "airy", "Airy 1830":
		return Airy1830Spheroid, true
	case "intl", "International 1924":
		return International1924, true
	case "sphere":
		return WebMercatorSpheroid, true
	}
	return Spheroid{}, false
}

// IsSphere reports whether the spheroid has no flattening.
func (s Spheroid) IsSphere() bool { return s.InverseFlattening == 0 }

// Flattening returns f.
func (s Spheroid) Flattening() float64 {
	if s.InverseFlattening == 0 {
		return 0
	}
	return 1 / s.InverseFlattening
}

// PolarRadius returns b = a(1-f).
func (s Spheroid) PolarRadius() float64 {
	return s.EquatorialRadius * (1 - s.Flattening())
}

// Es returns the first eccentricity squared, 2f - f².
func (s Spheroid) Es() float64 {
	f := s.Flattening()
	return 2*f - f*f
}

// E returns the first eccentricity.
func (s Spheroid) E() float64 { return math.Sqrt(s.Es()) }

// OneEs returns 1 - es.
func (s Spheroid) OneEs() float64 { return 1 - s.Es() }

// SecondEs returns the second eccentricity squared, es/(1-es).
func (s Spheroid) SecondEs() float64 { return s.Es() / s.OneEs() }

// SameShape reports whether s and o share the equatorial radius and have
// eccentricities squared within 1e-10 of each other.
func (s Spheroid) SameShape(o Spheroid) bool {
	return s.EquatorialRadius == o.EquatorialRadius &&
		scalar.EqualWithinAbs(s.Es(), o.Es(), esTolerance)
}
