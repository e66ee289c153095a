package coord

import "math"

// TransverseMercator is the ellipsoidal transverse Mercator projection
// (series expansion), with a spherical fallback for zero eccentricity.
type TransverseMercator struct {
	k0, lat0       float64
	es, ep2        float64
	e0, e1, e2, e3 float64
	ml0            float64
	sphere         bool
}

const tmercMaxIter = 6

// NewTransverseMercator returns a transverse Mercator projection with scale
// factor k0 on the central meridian and latitude of origin lat0 (radians).
func NewTransverseMercator(sph Spheroid, k0, lat0 float64) *TransverseMercator {
	es := sph.Es()
	t := &TransverseMercator{
		k0:     k0,
		lat0:   lat0,
		es:     es,
		sphere: es == 0,
		e0:     e0fn(es),
		e1:     e1fn(es),
		e2:     e2fn(es),
		e3:     e3fn(es),
	}
	if !t.sphere {
		t.ep2 = sph.SecondEs()
	}
	t.ml0 = mlfn(t.e0, t.e1, t.e2, t.e3, lat0)
	return t
}

// NewUTM returns the transverse Mercator shared by all UTM zones. The zone's
// central meridian and false origin live on the ProjectionInfo.
func NewUTM(sph Spheroid) *TransverseMercator {
	return NewTransverseMercator(sph, 0.9996, 0)
}

// UTMCentralMeridian returns the central meridian of a UTM zone in radians.
func UTMCentralMeridian(zone int) float64 {
	return (float64(zone)*6 - 183) * math.Pi / 180
}

func (t *TransverseMercator) Name() string { return "Transverse Mercator" }

func (t *TransverseMercator) Forward(xy []float64, start, n int) error {
	eachPoint(xy, start, n, func(lam, phi float64) (float64, float64, bool) {
		sinPhi, cosPhi := math.Sincos(phi)
		if t.sphere {
			b := cosPhi * math.Sin(lam)
			if math.Abs(math.Abs(b)-1) < epsln {
				return 0, 0, false
			}
			x := 0.5 * t.k0 * math.Log((1+b)/(1-b))
			con := math.Acos(cosPhi * math.Cos(lam) / math.Sqrt(1-b*b))
			if phi < 0 {
				con = -con
			}
			return x, t.k0 * (con - t.lat0), true
		}
		al := cosPhi * lam
		als := al * al
		c := t.ep2 * cosPhi * cosPhi
		tq := math.Tan(phi)
		tt := tq * tq
		con := 1 - t.es*sinPhi*sinPhi
		nn := 1 / math.Sqrt(con)
		ml := mlfn(t.e0, t.e1, t.e2, t.e3, phi)

		x := t.k0 * nn * al * (1 + als/6*(1-tt+c+als/20*(5-18*tt+tt*tt+72*c-58*t.ep2)))
		y := t.k0 * (ml - t.ml0 + nn*tq*(als*(0.5+als/24*(5-tt+9*c+4*c*c+als/30*(61-58*tt+tt*tt+600*c-330*t.ep2)))))
		return x, y, true
	})
	return nil
}

func (t *TransverseMercator) Inverse(xy []float64, start, n int) error {
	eachPoint(xy, start, n, func(x, y float64) (float64, float64, bool) {
		if t.sphere {
			f := math.Exp(x / t.k0)
			g := 0.5 * (f - 1/f)
			temp := t.lat0 + y/t.k0
			h := math.Cos(temp)
			phi := asinz(math.Sqrt((1 - h*h) / (1 + g*g)))
			if temp < 0 {
				phi = -phi
			}
			if g == 0 && h == 0 {
				return 0, phi, true
			}
			return math.Atan2(g, h), phi, true
		}

		con := t.ml0 + y/t.k0
		phi := con
		for i := 0; ; i++ {
			dphi := (con+t.e1*math.Sin(2*phi)-t.e2*math.Sin(4*phi)+t.e3*math.Sin(6*phi))/t.e0 - phi
			phi += dphi
			if math.Abs(dphi) <= epsln {
				break
			}
			if i >= tmercMaxIter {
				return 0, 0, false
			}
		}
		if math.Abs(phi) >= halfPi {
			return 0, halfPi * sign(y), true
		}

		sinPhi, cosPhi := math.Sincos(phi)
		tanPhi := math.Tan(phi)
		c := t.ep2 * cosPhi * cosPhi
		cs := c * c
		tt := tanPhi * tanPhi
		ts := tt * tt
		con = 1 - t.es*sinPhi*sinPhi
		nn := 1 / math.Sqrt(con)
		r := nn * (1 - t.es) / con
		d := x / (nn * t.k0)
		ds := d * d
		lat := phi - (nn*tanPhi*ds/r)*(0.5-ds/24*(5+3*tt+10*c-4*cs-9*t.ep2-ds/30*(61+90*tt+298*c+45*ts-252*t.ep2-3*cs)))
		lam := d * (1 - ds/6*(1+2*tt+c-ds/20*(5-2*c+28*tt-3*cs+8*t.ep2+24*ts))) / cosPhi
		return lam, lat, true
	})
	return nil
}
