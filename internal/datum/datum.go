// Package datum moves geodetic coordinates from one datum to another,
// through geocentric space and Helmert transformations or grid-shift
// tables as the datums require.
package datum

import (
	"github.com/pkg/errors"

	"github.com/pspoerri/reproject/internal/coord"
	"github.com/pspoerri/reproject/internal/geocent"
	"github.com/pspoerri/reproject/internal/gridshift"
)

// Transform converts the points [start, start+n) of xy, longitude and
// latitude in radians, from datum src to datum dst in place. z holds
// ellipsoidal heights and is updated when the transformation passes through
// geocentric space; nil means zero heights. Grid-shift datums resolve their
// tables through store, or gridshift.DefaultStore() when store is nil.
func Transform(src, dst coord.Datum, xy, z []float64, start, n int, store *gridshift.Store, opts gridshift.Options) (*gridshift.Report, error) {
	report := &gridshift.Report{}
	if n <= 0 || src.Type == coord.DatumUnknown || dst.Type == coord.DatumUnknown || src.Matches(dst) {
		return report, nil
	}
	if len(xy) < 2*(start+n) || (z != nil && len(z) < start+n) {
		return report, errors.Errorf("datum transform: buffers too short for %d points from %d", n, start)
	}
	if store == nil && (src.Type == coord.DatumGridShift || dst.Type == coord.DatumGridShift) {
		store = gridshift.DefaultStore()
	}

	srcSph, dstSph := src.Spheroid, dst.Spheroid
	if src.Type == coord.DatumGridShift {
		r, err := store.Apply(src.NadGrids, false, xy, start, n, opts)
		report.Merge(r)
		if err != nil {
			return report, errors.Wrapf(err, "shifting from %s", src.Name)
		}
		srcSph = coord.WGS84Spheroid
	}
	if dst.Type == coord.DatumGridShift {
		dstSph = coord.WGS84Spheroid
	}

	if !srcSph.SameShape(dstSph) || hasHelmert(src) || hasHelmert(dst) {
		if err := viaGeocentric(src, dst, srcSph, dstSph, xy, z, start, n); err != nil {
			return report, err
		}
	}

	if dst.Type == coord.DatumGridShift {
		r, err := store.Apply(dst.NadGrids, true, xy, start, n, opts)
		report.Merge(r)
		if err != nil {
			return report, errors.Wrapf(err, "shifting to %s", dst.Name)
		}
	}
	return report, nil
}

func hasHelmert(d coord.Datum) bool {
	return d.Type == coord.DatumParam3 || d.Type == coord.DatumParam7
}

func viaGeocentric(src, dst coord.Datum, srcSph, dstSph coord.Spheroid, xy, z []float64, start, n int) error {
	if z == nil {
		z = make([]float64, start+n)
	}
	geocent.ForSpheroid(srcSph).GeodeticToGeocentric(xy, z, start, n)

	if hasHelmert(src) {
		h, err := HelmertFor(src)
		if err != nil {
			return err
		}
		for i := start; i < start+n; i++ {
			if coord.IsUndefined(xy, i) {
				continue
			}
			xy[2*i], xy[2*i+1], z[i] = h.ToWGS84(xy[2*i], xy[2*i+1], z[i])
		}
	}
	if hasHelmert(dst) {
		h, err := HelmertFor(dst)
		if err != nil {
			return err
		}
		for i := start; i < start+n; i++ {
			if coord.IsUndefined(xy, i) {
				continue
			}
			xy[2*i], xy[2*i+1], z[i] = h.FromWGS84(xy[2*i], xy[2*i+1], z[i])
		}
	}

	geocent.ForSpheroid(dstSph).GeocentricToGeodetic(xy, z, start, n)
	return nil
}
