package reproject

import (
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/pkg/errors"

	"github.com/pspoerri/reproject/internal/coord"
)

// ErrUndefinedPoint is returned by a Transformer when a vertex has no
// representation in the destination system.
var ErrUndefinedPoint = errors.New("point is undefined in the destination system")

// Transformer returns a per-vertex function for github.com/ctessum/geom
// geometries. Heights are taken as zero. Warnings are dropped; with strict
// grid options they surface as errors instead.
func (e *Engine) Transformer(src, dst *coord.ProjectionInfo) (proj.Transformer, error) {
	if err := validate(nil, []float64{}, src, dst, 0, 0); err != nil {
		return nil, err
	}
	return func(x, y float64) (float64, float64, error) {
		xy := []float64{x, y}
		z := []float64{0}
		if _, err := e.ReprojectPoints(xy, z, src, dst, 0, 1); err != nil {
			return x, y, err
		}
		if coord.IsUndefined(xy, 0) {
			return xy[0], xy[1], errors.Wrapf(ErrUndefinedPoint, "(%g, %g)", x, y)
		}
		return xy[0], xy[1], nil
	}, nil
}

// Transformer is Engine.Transformer with DefaultOptions.
func Transformer(src, dst *coord.ProjectionInfo) (proj.Transformer, error) {
	return defaultEngine.Transformer(src, dst)
}

// TransformGeometry reprojects every vertex of g into a new geometry.
func (e *Engine) TransformGeometry(g geom.Geom, src, dst *coord.ProjectionInfo) (geom.Geom, error) {
	t, err := e.Transformer(src, dst)
	if err != nil {
		return nil, err
	}
	out, err := g.Transform(t)
	if err != nil {
		return nil, errors.Wrapf(err, "reprojecting %T from %s to %s", g, src, dst)
	}
	return out, nil
}

// TransformGeometry is Engine.TransformGeometry with DefaultOptions.
func TransformGeometry(g geom.Geom, src, dst *coord.ProjectionInfo) (geom.Geom, error) {
	return defaultEngine.TransformGeometry(g, src, dst)
}
