package coord

import "math"

// SwissObliqueMercator implements the oblique Mercator used by the Swiss
// national grids (CH1903 LV03 and CH1903+ LV95). The ellipsoid is first
// mapped conformally onto a sphere, which is then rotated so that the
// projection centre lies on the equator.
//
// Reference: swisstopo, "Formulas and constants for the calculation of the
// Swiss conformal cylindrical projection and for the transformation between
// coordinate systems".
type SwissObliqueMercator struct {
	e     float64
	r     float64 // radius of the projection sphere, in units of a
	alpha float64
	b0    float64
	k     float64
}

const (
	somercTolerance = 1e-12
	somercMaxIter   = 30
)

// NewSwissObliqueMercator returns the projection centred on latitude lat0
// (radians) with scale k0.
func NewSwissObliqueMercator(sph Spheroid, lat0, k0 float64) *SwissObliqueMercator {
	if k0 == 0 {
		k0 = 1
	}
	es := sph.Es()
	e := math.Sqrt(es)
	sin0, cos0 := math.Sincos(lat0)

	s := &SwissObliqueMercator{e: e}
	s.r = k0 * math.Sqrt(1-es) / (1 - es*sin0*sin0)
	s.alpha = math.Sqrt(1 + es/(1-es)*math.Pow(cos0, 4))
	s.b0 = math.Asin(sin0 / s.alpha)
	k1 := math.Log(math.Tan(math.Pi/4 + s.b0/2))
	k2 := math.Log(math.Tan(math.Pi/4 + lat0/2))
	k3 := math.Log((1 + e*sin0) / (1 - e*sin0))
	s.k = k1 - s.alpha*k2 + s.alpha*e/2*k3
	return s
}

func (s *SwissObliqueMercator) Name() string { return "Swiss Oblique Mercator" }

func (s *SwissObliqueMercator) Forward(xy []float64, start, n int) error {
	sinB0, cosB0 := math.Sincos(s.b0)
	eachPoint(xy, start, n, func(lam, phi float64) (float64, float64, bool) {
		sinPhi := math.Sin(phi)
		sa1 := math.Log(math.Tan(math.Pi/4 - phi/2))
		sa2 := s.e / 2 * math.Log((1+s.e*sinPhi)/(1-s.e*sinPhi))
		sph := -s.alpha*(sa1+sa2) + s.k

		b := 2 * (math.Atan(math.Exp(sph)) - math.Pi/4)
		l := s.alpha * lam

		rotI := math.Atan(math.Sin(l) / (sinB0*math.Tan(b) + cosB0*math.Cos(l)))
		rotB := math.Asin(cosB0*math.Sin(b) - sinB0*math.Cos(b)*math.Cos(l))
		sinRot := math.Sin(rotB)
		y := s.r / 2 * math.Log((1+sinRot)/(1-sinRot))
		return s.r * rotI, y, true
	})
	return nil
}

func (s *SwissObliqueMercator) Inverse(xy []float64, start, n int) error {
	sinB0, cosB0 := math.Sincos(s.b0)
	eachPoint(xy, start, n, func(x, y float64) (float64, float64, bool) {
		rotI := x / s.r
		rotB := 2 * (math.Atan(math.Exp(y/s.r)) - math.Pi/4)
		b := math.Asin(cosB0*math.Sin(rotB) + sinB0*math.Cos(rotB)*math.Cos(rotI))
		l := math.Atan(math.Sin(rotI) / (cosB0*math.Cos(rotI) - sinB0*math.Tan(rotB)))
		lam := l / s.alpha

		isoB := (math.Log(math.Tan(math.Pi/4+b/2)) - s.k) / s.alpha
		phi := b
		for i := 0; ; i++ {
			if i >= somercMaxIter {
				return 0, 0, false
			}
			sph := isoB + s.e*math.Log(math.Tan(math.Pi/4+math.Asin(s.e*math.Sin(phi))/2))
			next := 2*math.Atan(math.Exp(sph)) - math.Pi/2
			if math.Abs(next-phi) <= somercTolerance {
				phi = next
				break
			}
			phi = next
		}
		return lam, phi, true
	})
	return nil
}
