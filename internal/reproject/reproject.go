// Package reproject converts point buffers between two coordinate reference
// systems: source projection inverse, datum change, destination projection
// forward.
package reproject

import (
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/pspoerri/reproject/internal/coord"
	"github.com/pspoerri/reproject/internal/datum"
	"github.com/pspoerri/reproject/internal/geocent"
	"github.com/pspoerri/reproject/internal/gridshift"
)

// ErrInvalidTransform reports a call that cannot run as configured: nil
// descriptors, buffers that are too short, a geocentric system without a
// height channel or a projected system without a Transform.
var ErrInvalidTransform = errors.New("invalid transform")

const (
	poleEpsilon = 1e-12
	// Longitudes beyond this many radians are treated as garbage.
	maxLongitude = 10
)

// Options configures an Engine.
type Options struct {
	Grid gridshift.Options
	// Store resolves grid names. Nil means gridshift.DefaultStore().
	Store *gridshift.Store
}

// DefaultOptions returns strict coverage, lenient convergence and the
// default grid store.
func DefaultOptions() Options {
	return Options{Grid: gridshift.DefaultOptions()}
}

// Engine runs reprojections with a fixed set of options. It holds no
// per-call state and is safe for concurrent use on disjoint buffers.
type Engine struct {
	opts Options
}

// NewEngine returns an engine using opts.
func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts}
}

// Options returns the engine's configuration.
func (e *Engine) Options() Options { return e.opts }

func (e *Engine) logger() logrus.FieldLogger {
	if e.opts.Grid.Logger == nil {
		return logrus.StandardLogger()
	}
	return e.opts.Grid.Logger
}

var defaultEngine = NewEngine(DefaultOptions())

// ReprojectPoints reprojects points with DefaultOptions. Warnings are
// logged and otherwise dropped.
func ReprojectPoints(xy, z []float64, src, dst *coord.ProjectionInfo, start, n int) error {
	_, err := defaultEngine.ReprojectPoints(xy, z, src, dst, start, n)
	return err
}

// ReprojectPoints converts the points [start, start+n) of the interleaved
// buffer xy (and the heights in z, which may be nil unless either system is
// geocentric) from src to dst in place. Points that cannot be represented
// in dst are set to +Inf, +Inf; points that are +Inf on entry are left
// alone. When an error is returned after validation the range is left
// partly converted, typically as geodetic radians, and must not be used.
func (e *Engine) ReprojectPoints(xy, z []float64, src, dst *coord.ProjectionInfo, start, n int) (*gridshift.Report, error) {
	if err := validate(xy, z, src, dst, start, n); err != nil {
		return nil, err
	}
	if n == 0 || src == dst {
		return &gridshift.Report{}, nil
	}

	if err := toGeodetic(xy, z, src, start, n); err != nil {
		return nil, errors.Wrapf(err, "inverse %s", src)
	}
	shiftMeridian(xy, start, n, src.GeographicInfo.Meridian.Radians())

	report, err := datum.Transform(src.Datum(), dst.Datum(), xy, z, start, n, e.opts.Store, e.opts.Grid)
	if err != nil {
		return report, errors.Wrapf(err, "datum %s -> %s", src.Datum().Name, dst.Datum().Name)
	}

	shiftMeridian(xy, start, n, -dst.GeographicInfo.Meridian.Radians())
	if err := fromGeodetic(xy, z, dst, start, n); err != nil {
		return report, errors.Wrapf(err, "forward %s", dst)
	}
	if !report.Empty() {
		e.logger().WithFields(logrus.Fields{
			"from":     src.String(),
			"to":       dst.String(),
			"warnings": len(report.Warnings),
		}).Debug("Reprojection finished with warnings")
	}
	return report, nil
}

func validate(xy, z []float64, src, dst *coord.ProjectionInfo, start, n int) error {
	switch {
	case src == nil || dst == nil:
		return errors.Wrap(ErrInvalidTransform, "nil coordinate system")
	case start < 0 || n < 0:
		return errors.Wrapf(ErrInvalidTransform, "negative range %d+%d", start, n)
	case len(xy) < 2*(start+n):
		return errors.Wrapf(ErrInvalidTransform, "xy holds %d values, need %d", len(xy), 2*(start+n))
	case z != nil && len(z) < start+n:
		return errors.Wrapf(ErrInvalidTransform, "z holds %d values, need %d", len(z), start+n)
	case z == nil && (src.IsGeocentric || dst.IsGeocentric):
		return errors.Wrap(ErrInvalidTransform, "geocentric system without heights")
	}
	for _, p := range []*coord.ProjectionInfo{src, dst} {
		if !p.IsLatLon && !p.IsGeocentric && p.Transform == nil {
			return errors.Wrapf(ErrInvalidTransform, "projected system %q has no transform", p.Name)
		}
	}
	return nil
}

// toGeodetic leaves longitude and latitude in radians relative to the
// source prime meridian.
func toGeodetic(xy, z []float64, src *coord.ProjectionInfo, start, n int) error {
	switch {
	case src.IsGeocentric:
		if m := src.ToMeter(); m != 1 {
			for i := start; i < start+n; i++ {
				if coord.IsUndefined(xy, i) {
					continue
				}
				xy[2*i] *= m
				xy[2*i+1] *= m
				z[i] *= m
			}
		}
		geocent.ForSpheroid(src.Spheroid()).GeocentricToGeodetic(xy, z, start, n)
		return nil

	case src.IsLatLon:
		scale(xy, start, n, src.AngularRadians())
		return nil
	}

	sph := src.Spheroid()
	a, m := sph.EquatorialRadius, src.ToMeter()
	for i := start; i < start+n; i++ {
		if coord.IsUndefined(xy, i) {
			continue
		}
		xy[2*i] = (xy[2*i]*m - src.FalseEasting) / a
		xy[2*i+1] = (xy[2*i+1]*m - src.FalseNorthing) / a
	}
	if err := src.Transform.Inverse(xy, start, n); err != nil {
		return err
	}
	oneEs := sph.OneEs()
	for i := start; i < start+n; i++ {
		if coord.IsUndefined(xy, i) {
			continue
		}
		lam := xy[2*i] + src.CentralMeridian
		if !src.Over {
			lam = coord.Adjlon(lam)
		}
		xy[2*i] = lam
		if phi := xy[2*i+1]; src.Geoc && math.Abs(math.Abs(phi)-math.Pi/2) > poleEpsilon {
			xy[2*i+1] = math.Atan(oneEs * math.Tan(phi))
		}
	}
	return nil
}

// fromGeodetic expects longitude relative to the destination prime
// meridian.
func fromGeodetic(xy, z []float64, dst *coord.ProjectionInfo, start, n int) error {
	if dst.IsGeocentric {
		geocent.ForSpheroid(dst.Spheroid()).GeodeticToGeocentric(xy, z, start, n)
		if m := dst.ToMeter(); m != 1 {
			for i := start; i < start+n; i++ {
				if coord.IsUndefined(xy, i) {
					continue
				}
				xy[2*i] /= m
				xy[2*i+1] /= m
				z[i] /= m
			}
		}
		return nil
	}

	rejectOutOfRange(xy, start, n)
	if dst.IsLatLon {
		scale(xy, start, n, 1/dst.AngularRadians())
		return nil
	}

	sph := dst.Spheroid()
	oneEs := sph.OneEs()
	for i := start; i < start+n; i++ {
		if coord.IsUndefined(xy, i) {
			continue
		}
		phi := xy[2*i+1]
		if math.Abs(math.Abs(phi)-math.Pi/2) <= poleEpsilon {
			phi = math.Copysign(math.Pi/2, phi)
		} else if dst.Geoc {
			phi = math.Atan(math.Tan(phi) / oneEs)
		}
		lam := xy[2*i] - dst.CentralMeridian
		if !dst.Over {
			lam = coord.Adjlon(lam)
		}
		xy[2*i], xy[2*i+1] = lam, phi
	}
	if err := dst.Transform.Forward(xy, start, n); err != nil {
		return err
	}
	a, m := sph.EquatorialRadius, dst.ToMeter()
	for i := start; i < start+n; i++ {
		if coord.IsUndefined(xy, i) {
			continue
		}
		xy[2*i] = (a*xy[2*i] + dst.FalseEasting) / m
		xy[2*i+1] = (a*xy[2*i+1] + dst.FalseNorthing) / m
	}
	return nil
}

// rejectOutOfRange marks points with an impossible latitude or a wild
// longitude as undefined.
func rejectOutOfRange(xy []float64, start, n int) {
	for i := start; i < start+n; i++ {
		if coord.IsUndefined(xy, i) {
			continue
		}
		lam, phi := xy[2*i], xy[2*i+1]
		if math.IsNaN(lam) || math.IsNaN(phi) ||
			math.Abs(phi)-math.Pi/2 > poleEpsilon || math.Abs(lam) > maxLongitude {
			coord.SetUndefined(xy, i)
		}
	}
}

func shiftMeridian(xy []float64, start, n int, pm float64) {
	if pm == 0 {
		return
	}
	for i := start; i < start+n; i++ {
		if !coord.IsUndefined(xy, i) {
			xy[2*i] += pm
		}
	}
}

func scale(xy []float64, start, n int, f float64) {
	if f == 1 {
		return
	}
	for i := start; i < start+n; i++ {
		if coord.IsUndefined(xy, i) {
			continue
		}
		xy[2*i] *= f
		xy[2*i+1] *= f
	}
}
