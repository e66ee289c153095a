package coord

import "math"

// Transform is a projection method. It works on normalized coordinates:
// Forward maps (lambda-lam0, phi) in radians to (x/a, y/a) and Inverse maps
// back. Both operate in place on the interleaved xy buffer for points
// [start, start+n). A point that cannot be projected is set to +Inf, +Inf;
// points that are already +Inf must be left alone. The returned error is for
// configuration problems only.
type Transform interface {
	Name() string
	Forward(xy []float64, start, n int) error
	Inverse(xy []float64, start, n int) error
}

// GeographicInfo is the geographic part of a coordinate reference system.
type GeographicInfo struct {
	Name     string
	Datum    Datum
	Meridian Meridian
	Unit     AngularUnit
}

// ProjectionInfo fully describes a coordinate reference system.
type ProjectionInfo struct {
	Name string
	EPSG int

	GeographicInfo GeographicInfo
	Unit           LinearUnit

	FalseEasting    float64 // meters
	FalseNorthing   float64 // meters
	CentralMeridian float64 // lam0, radians

	IsLatLon     bool
	IsGeocentric bool
	// Over disables wrapping longitudes into [-pi, pi].
	Over bool
	// Geoc marks latitudes as geocentric rather than geodetic.
	Geoc bool

	Transform Transform
}

// Spheroid returns the spheroid of the system's datum.
func (p *ProjectionInfo) Spheroid() Spheroid { return p.GeographicInfo.Datum.Spheroid }

// Datum returns the system's datum.
func (p *ProjectionInfo) Datum() Datum { return p.GeographicInfo.Datum }

// ToMeter returns the linear unit's size in meters, defaulting to 1.
func (p *ProjectionInfo) ToMeter() float64 {
	if p.Unit.Meters == 0 {
		return 1
	}
	return p.Unit.Meters
}

// AngularRadians returns the geographic unit's size in radians, defaulting
// to degrees.
func (p *ProjectionInfo) AngularRadians() float64 {
	if p.GeographicInfo.Unit.Radians == 0 {
		return Degree.Radians
	}
	return p.GeographicInfo.Unit.Radians
}

func (p *ProjectionInfo) String() string {
	if p.Name != "" {
		return p.Name
	}
	if p.Transform != nil {
		return p.Transform.Name()
	}
	return "longlat"
}

// PhiLam is a geodetic position in radians.
type PhiLam struct {
	Lambda float64
	Phi    float64
}

const (
	halfPi = math.Pi / 2
	twoPi  = 2 * math.Pi
	// adjlonLimit lets longitudes drift a little past the antimeridian
	// without flipping sign.
	adjlonLimit = math.Pi + math.Pi/72
)

// Adjlon wraps a longitude in radians into [-pi, pi]. Values within
// pi/72 beyond the antimeridian are returned unchanged.
func Adjlon(lon float64) float64 {
	if math.Abs(lon) <= adjlonLimit {
		return lon
	}
	lon += math.Pi
	lon -= twoPi * math.Floor(lon/twoPi)
	return lon - math.Pi
}

// IsUndefined reports whether the point at index i carries the +Inf marker.
func IsUndefined(xy []float64, i int) bool {
	return math.IsInf(xy[2*i], 1)
}

// SetUndefined marks the point at index i as undefined.
func SetUndefined(xy []float64, i int) {
	xy[2*i] = math.Inf(1)
	xy[2*i+1] = math.Inf(1)
}
