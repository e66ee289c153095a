package coord

import (
	"fmt"
	"math"
)

// LambertConformalConic is the ellipsoidal Lambert conformal conic
// projection with one or two standard parallels.
type LambertConformalConic struct {
	e, k0  float64
	ns, f0 float64
	rh     float64
}

// NewLambertConformalConic returns an LCC projection. lat1 and lat2 are the
// standard parallels and lat0 the latitude of origin, all in radians. Pass
// lat2 == lat1 for the one standard parallel variant.
func NewLambertConformalConic(sph Spheroid, lat0, lat1, lat2, k0 float64) (*LambertConformalConic, error) {
	if math.Abs(lat1+lat2) < epsln {
		return nil, fmt.Errorf("lambert conformal conic: standard parallels %v and %v are opposite", lat1, lat2)
	}
	if k0 == 0 {
		k0 = 1
	}
	l := &LambertConformalConic{e: sph.E(), k0: k0}

	sin1, cos1 := math.Sincos(lat1)
	ms1 := msfnz(l.e, sin1, cos1)
	ts1 := tsfnz(l.e, lat1, sin1)
	sin2, cos2 := math.Sincos(lat2)
	ms2 := msfnz(l.e, sin2, cos2)
	ts2 := tsfnz(l.e, lat2, sin2)
	ts0 := tsfnz(l.e, lat0, math.Sin(lat0))

	if math.Abs(lat1-lat2) > epsln {
		l.ns = math.Log(ms1/ms2) / math.Log(ts1/ts2)
	} else {
		l.ns = sin1
	}
	if math.IsNaN(l.ns) {
		l.ns = sin1
	}
	l.f0 = ms1 / (l.ns * math.Pow(ts1, l.ns))
	l.rh = l.f0 * math.Pow(ts0, l.ns)
	return l, nil
}

func (l *LambertConformalConic) Name() string { return "Lambert Conformal Conic" }

func (l *LambertConformalConic) Forward(xy []float64, start, n int) error {
	eachPoint(xy, start, n, func(lam, phi float64) (float64, float64, bool) {
		if math.Abs(2*math.Abs(phi)-math.Pi) <= epsln {
			phi = sign(phi) * (halfPi - 2*epsln)
		}
		var rh1 float64
		if con := math.Abs(math.Abs(phi) - halfPi); con > epsln {
			rh1 = l.f0 * math.Pow(tsfnz(l.e, phi, math.Sin(phi)), l.ns)
		} else if phi*l.ns <= 0 {
			return 0, 0, false
		}
		sinT, cosT := math.Sincos(l.ns * lam)
		return l.k0 * rh1 * sinT, l.k0 * (l.rh - rh1*cosT), true
	})
	return nil
}

func (l *LambertConformalConic) Inverse(xy []float64, start, n int) error {
	eachPoint(xy, start, n, func(x, y float64) (float64, float64, bool) {
		x /= l.k0
		y = l.rh - y/l.k0
		rh1 := math.Hypot(x, y)
		con := 1.0
		if l.ns < 0 {
			rh1, con = -rh1, -1
		}
		var theta float64
		if rh1 != 0 {
			theta = math.Atan2(con*x, con*y)
		}
		phi := -halfPi
		if rh1 != 0 || l.ns > 0 {
			phi = phi2z(l.e, math.Pow(rh1/l.f0, 1/l.ns))
		}
		return theta / l.ns, phi, true
	})
	return nil
}
