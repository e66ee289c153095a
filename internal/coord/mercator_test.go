package coord

import (
	"math"
	"testing"
)

// originShift is half the earth's circumference on the Web Mercator sphere.
const originShift = 20037508.342789244

func TestWebMercatorKnownValues(t *testing.T) {
	a := WGS84Spheroid.EquatorialRadius
	tests := []struct {
		name     string
		lon, lat float64 // degrees
		x, y     float64 // meters
	}{
		{"origin", 0, 0, 0, 0},
		{"antimeridian", 180, 0, originShift, 0},
		{"max latitude", 0, 85.0511287798066, 0, originShift},
		{"Zurich", 8.5417, 47.3769, 950857.69, 6003812.20},
	}
	m := NewWebMercator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			xy := []float64{tt.lon * deg, tt.lat * deg}
			if err := m.Forward(xy, 0, 1); err != nil {
				t.Fatal(err)
			}
			x, y := xy[0]*a, xy[1]*a
			tol := 0.01
			if math.Abs(x-tt.x) > tol || math.Abs(y-tt.y) > tol {
				t.Errorf("Forward(%v, %v) = (%.3f, %.3f), want (%.3f, %.3f)", tt.lon, tt.lat, x, y, tt.x, tt.y)
			}
		})
	}
}

// TestEllipsoidalMercatorClosedForm checks the ellipsoidal Mercator against
// y = a·ln(tan(pi/4 + phi/2)·((1 - e sin phi)/(1 + e sin phi))^(e/2)).
func TestEllipsoidalMercatorClosedForm(t *testing.T) {
	e := WGS84Spheroid.E()
	m := NewMercator(WGS84Spheroid, 1, 0)
	for _, lat := range []float64{-80, -37.8, -1, 0, 12.5, 37.8, 60, 84} {
		phi := lat * deg
		s := math.Sin(phi)
		want := math.Log(math.Tan(math.Pi/4+phi/2) * math.Pow((1-e*s)/(1+e*s), e/2))

		xy := []float64{0.3, phi}
		if err := m.Forward(xy, 0, 1); err != nil {
			t.Fatal(err)
		}
		if math.Abs(xy[0]-0.3) > 1e-15 {
			t.Errorf("lat %v: x = %v, want 0.3", lat, xy[0])
		}
		if math.Abs(xy[1]-want) > 1e-13 {
			t.Errorf("lat %v: y = %.15f, want %.15f", lat, xy[1], want)
		}
	}
}

func TestMercatorPoleIsUndefined(t *testing.T) {
	for _, m := range []*Mercator{NewWebMercator(), NewMercator(WGS84Spheroid, 1, 0)} {
		xy := []float64{0, halfPi, 0, -halfPi}
		if err := m.Forward(xy, 0, 2); err != nil {
			t.Fatal(err)
		}
		if !IsUndefined(xy, 0) || !IsUndefined(xy, 1) {
			t.Errorf("%s: poles projected to %v", m.Name(), xy)
		}
	}
}

func TestMercatorLatitudeOfTrueScale(t *testing.T) {
	m := NewMercator(WGS84Spheroid, 0, 45*deg)
	sin, cos := math.Sincos(45 * deg)
	want := msfnz(WGS84Spheroid.E(), sin, cos)
	if math.Abs(m.k0-want) > 1e-15 {
		t.Errorf("k0 = %v, want %v", m.k0, want)
	}
	s := NewMercator(Spheroid{Name: "sphere", EquatorialRadius: 1}, 0, 60*deg)
	if math.Abs(s.k0-0.5) > 1e-15 {
		t.Errorf("spherical k0 = %v, want 0.5", s.k0)
	}
}
