package coord

import "github.com/golang/geo/s1"

// AngularUnit scales geographic coordinates to radians.
type AngularUnit struct {
	Name    string
	Radians float64 // radians per unit
}

// LinearUnit scales projected and geocentric coordinates to meters.
type LinearUnit struct {
	Name   string
	Meters float64 // meters per unit
}

// Meridian is a prime meridian, given as its longitude east of Greenwich.
type Meridian struct {
	Name      string
	Longitude float64 // degrees
}

// Radians returns the meridian's offset from Greenwich in radians.
func (m Meridian) Radians() float64 {
	return (s1.Angle(m.Longitude) * s1.Degree).Radians()
}

var (
	Degree    = AngularUnit{Name: "degree", Radians: s1.Degree.Radians()}
	Radian    = AngularUnit{Name: "radian", Radians: s1.Radian.Radians()}
	Grad      = AngularUnit{Name: "grad", Radians: (s1.Degree * 0.9).Radians()}
	ArcSecond = AngularUnit{Name: "arc-second", Radians: (s1.Degree / 3600).Radians()}

	Meter        = LinearUnit{Name: "metre", Meters: 1}
	Kilometer    = LinearUnit{Name: "kilometre", Meters: 1000}
	Foot         = LinearUnit{Name: "foot", Meters: 0.3048}
	USSurveyFoot = LinearUnit{Name: "US survey foot", Meters: 1200.0 / 3937.0}

	Greenwich = Meridian{Name: "Greenwich"}
	Paris     = Meridian{Name: "Paris", Longitude: 2.33722917}
	Bern      = Meridian{Name: "Bern", Longitude: 7.43958333}
)
