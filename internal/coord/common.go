package coord

import "math"

const epsln = 1.0e-10

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}

func msfnz(eccent, sinphi, cosphi float64) float64 {
	con := eccent * sinphi
	return cosphi / math.Sqrt(1-con*con)
}

func tsfnz(eccent, phi, sinphi float64) float64 {
	con := eccent * sinphi
	com := 0.5 * eccent
	con = math.Pow((1-con)/(1+con), com)
	return math.Tan(0.5*(halfPi-phi)) / con
}

// phi2z inverts tsfnz. It returns NaN when the iteration does not settle.
func phi2z(eccent, ts float64) float64 {
	eccnth := 0.5 * eccent
	phi := halfPi - 2*math.Atan(ts)
	for i := 0; i <= 15; i++ {
		con := eccent * math.Sin(phi)
		dphi := halfPi - 2*math.Atan(ts*math.Pow((1-con)/(1+con), eccnth)) - phi
		phi += dphi
		if math.Abs(dphi) <= epsln {
			return phi
		}
	}
	return math.NaN()
}

func e0fn(x float64) float64 { return 1 - 0.25*x*(1+x/16*(3+1.25*x)) }
func e1fn(x float64) float64 { return 0.375 * x * (1 + 0.25*x*(1+0.46875*x)) }
func e2fn(x float64) float64 { return 0.05859375 * x * x * (1 + 0.75*x) }
func e3fn(x float64) float64 { return x * x * x * (35.0 / 3072.0) }

func mlfn(e0, e1, e2, e3, phi float64) float64 {
	return e0*phi - e1*math.Sin(2*phi) + e2*math.Sin(4*phi) - e3*math.Sin(6*phi)
}

func asinz(x float64) float64 {
	if math.Abs(x) > 1 {
		x = sign(x)
	}
	return math.Asin(x)
}

// eachPoint calls fn for every defined point in [start, start+n). If fn
// returns false the point is marked undefined.
func eachPoint(xy []float64, start, n int, fn func(x, y float64) (float64, float64, bool)) {
	for i := start; i < start+n; i++ {
		if IsUndefined(xy, i) {
			continue
		}
		x, y, ok := fn(xy[2*i], xy[2*i+1])
		if !ok || math.IsNaN(x) || math.IsNaN(y) {
			SetUndefined(xy, i)
			continue
		}
		xy[2*i], xy[2*i+1] = x, y
	}
}
