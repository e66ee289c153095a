package coord

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"
)

// DatumType selects how a datum relates to WGS84.
type DatumType int

const (
	// DatumUnknown disables any datum transformation involving the datum.
	DatumUnknown DatumType = iota
	// DatumParam3 is a 3-parameter geocentric translation to WGS84.
	DatumParam3
	// DatumParam7 is a 7-parameter Helmert transformation to WGS84.
	DatumParam7
	// DatumGridShift relates the datum to WGS84 through grid-shift tables.
	DatumGridShift
	// DatumWGS84 is WGS84 itself (or an equivalent such as NAD83/ETRS89).
	DatumWGS84
)

func (t DatumType) String() string {
	switch t {
	case DatumUnknown:
		return "unknown"
	case DatumParam3:
		return "3param"
	case DatumParam7:
		return "7param"
	case DatumGridShift:
		return "gridshift"
	case DatumWGS84:
		return "wgs84"
	default:
		return fmt.Sprintf("DatumType(%d)", int(t))
	}
}

// esTolerance is the largest eccentricity-squared difference for which two
// spheroids are treated as the same. WGS84 and GRS80 fall inside it.
const esTolerance = 1e-10

// Datum describes a geodetic datum: its spheroid plus the relation to WGS84.
//
// ToWGS84 holds dx, dy, dz in meters, rx, ry, rz in arc-seconds and the
// scale difference in parts per million. Only the first three entries are
// meaningful for DatumParam3.
type Datum struct {
	Name     string
	Type     DatumType
	Spheroid Spheroid
	ToWGS84  [7]float64
	NadGrids []string
}

// WGS84Datum is the WGS84 datum.
var WGS84Datum = Datum{Name: "WGS84", Type: DatumWGS84, Spheroid: WGS84Spheroid}

// NewDatum classifies a datum from its Helmert parameters. Without
// parameters the datum is WGS84 when its spheroid has the WGS84 shape and
// DatumUnknown otherwise, since an ellipsoid alone does not fix a datum.
// Three values or seven with zero rotation and scale give DatumParam3,
// otherwise DatumParam7. All-zero parameters on a WGS84-shaped spheroid give
// DatumWGS84; on any other spheroid they stay DatumParam3, a pure change of
// ellipsoid.
func NewDatum(name string, sph Spheroid, toWGS84 ...float64) (Datum, error) {
	d := Datum{Name: name, Spheroid: sph, Type: DatumUnknown}
	wgs84Shape := sph.SameShape(WGS84Spheroid)
	switch len(toWGS84) {
	case 0:
		if wgs84Shape {
			d.Type = DatumWGS84
		}
		return d, nil
	case 3, 7:
	default:
		return Datum{}, errors.Errorf("datum %q: want 3 or 7 towgs84 values, got %d", name, len(toWGS84))
	}
	copy(d.ToWGS84[:], toWGS84)
	nonZero := func(v float64) bool { return v != 0 }
	switch {
	case len(toWGS84) == 7 && slices.ContainsFunc(toWGS84[3:], nonZero):
		d.Type = DatumParam7
	case slices.ContainsFunc(toWGS84[:3], nonZero) || !wgs84Shape:
		d.Type = DatumParam3
	default:
		d.Type = DatumWGS84
	}
	return d, nil
}

// NewGridShiftDatum returns a datum related to WGS84 by the named grids,
// tried in order. Names starting with '@' are optional.
func NewGridShiftDatum(name string, sph Spheroid, grids ...string) Datum {
	return Datum{Name: name, Type: DatumGridShift, Spheroid: sph, NadGrids: slices.Clone(grids)}
}

// Matches reports whether transforming between d and other is a no-op:
// same type, same spheroid shape and, per type, the same parameters.
func (d Datum) Matches(other Datum) bool {
	if d.Type != other.Type || !d.Spheroid.SameShape(other.Spheroid) {
		return false
	}
	switch d.Type {
	case DatumParam3:
		return d.ToWGS84[0] == other.ToWGS84[0] &&
			d.ToWGS84[1] == other.ToWGS84[1] &&
			d.ToWGS84[2] == other.ToWGS84[2]
	case DatumParam7:
		return d.ToWGS84 == other.ToWGS84
	case DatumGridShift:
		return slices.Equal(d.NadGrids, other.NadGrids)
	}
	return true
}
