package config

import (
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/pspoerri/reproject/internal/coord"
)

// CRSDef is one [[crs]] table of a descriptor file. Angles are in degrees.
//
//	[[crs]]
//	name = "CH1903+ / LV95 (local)"
//	ellipsoid = "bessel"
//	towgs84 = [674.374, 15.056, 405.346]
//	projection = "somerc"
//	lat_0 = 46.95240555555556
//	lon_0 = 7.439583333333333
//	x_0 = 2600000
//	y_0 = 1200000
type CRSDef struct {
	Name string `toml:"name"`
	EPSG int    `toml:"epsg"`

	Ellipsoid string    `toml:"ellipsoid"`
	A         float64   `toml:"a"`
	Rf        float64   `toml:"rf"`
	Datum     string    `toml:"datum"`
	ToWGS84   []float64 `toml:"towgs84"`
	NadGrids  []string  `toml:"nadgrids"`

	PrimeMeridian string  `toml:"pm"`
	PMLongitude   float64 `toml:"pm_lon"`
	Units         string  `toml:"units"`
	AngularUnits  string  `toml:"angular_units"`

	Projection string  `toml:"projection"`
	Lat0       float64 `toml:"lat_0"`
	Lat1       float64 `toml:"lat_1"`
	Lat2       float64 `toml:"lat_2"`
	LatTS      float64 `toml:"lat_ts"`
	Lon0       float64 `toml:"lon_0"`
	K0         float64 `toml:"k_0"`
	X0         float64 `toml:"x_0"`
	Y0         float64 `toml:"y_0"`
	Zone       int     `toml:"zone"`
	South      bool    `toml:"south"`
	Over       bool    `toml:"over"`
	Geoc       bool    `toml:"geoc"`
}

type crsFile struct {
	CRS []CRSDef `toml:"crs"`
}

// DecodeCRS parses a descriptor file.
func DecodeCRS(r io.Reader) ([]CRSDef, error) {
	var f crsFile
	md, err := toml.NewDecoder(r).Decode(&f)
	if err != nil {
		return nil, errors.Wrap(err, "decoding descriptors")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.Errorf("unknown descriptor keys: %s", strings.Join(keys, ", "))
	}
	return f.CRS, nil
}

const deg = math.Pi / 180

// Build turns the definition into a coordinate system.
func (d CRSDef) Build() (*coord.ProjectionInfo, error) {
	if d.Name == "" {
		return nil, errors.New("descriptor without name")
	}
	sph, err := d.spheroid()
	if err != nil {
		return nil, errors.Wrap(err, d.Name)
	}
	dat, err := d.datum(sph)
	if err != nil {
		return nil, errors.Wrap(err, d.Name)
	}
	pm, err := d.meridian()
	if err != nil {
		return nil, errors.Wrap(err, d.Name)
	}
	linear, err := linearUnit(d.Units)
	if err != nil {
		return nil, errors.Wrap(err, d.Name)
	}
	angular, err := angularUnit(d.AngularUnits)
	if err != nil {
		return nil, errors.Wrap(err, d.Name)
	}

	p := &coord.ProjectionInfo{
		Name: d.Name,
		EPSG: d.EPSG,
		GeographicInfo: coord.GeographicInfo{
			Name:     dat.Name,
			Datum:    dat,
			Meridian: pm,
			Unit:     angular,
		},
		Unit:            linear,
		FalseEasting:    d.X0,
		FalseNorthing:   d.Y0,
		CentralMeridian: d.Lon0 * deg,
		Over:            d.Over,
		Geoc:            d.Geoc,
	}

	switch strings.ToLower(d.Projection) {
	case "", "longlat", "latlong":
		p.IsLatLon = true
	case "geocent", "geocentric":
		p.IsGeocentric = true
	case "merc":
		p.Transform = coord.NewMercator(sph, d.K0, d.LatTS*deg)
	case "webmerc":
		p.Transform = coord.NewWebMercator()
	case "tmerc":
		p.Transform = coord.NewTransverseMercator(sph, orOne(d.K0), d.Lat0*deg)
	case "utm":
		if d.Zone < 1 || d.Zone > 60 {
			return nil, errors.Errorf("%s: utm zone %d out of range", d.Name, d.Zone)
		}
		p.Transform = coord.NewUTM(sph)
		p.CentralMeridian = coord.UTMCentralMeridian(d.Zone)
		p.FalseEasting = 500000
		if d.South {
			p.FalseNorthing = 10000000
		}
	case "lcc":
		lat2 := d.Lat2
		if lat2 == 0 {
			lat2 = d.Lat1
		}
		lcc, err := coord.NewLambertConformalConic(sph, d.Lat0*deg, d.Lat1*deg, lat2*deg, d.K0)
		if err != nil {
			return nil, errors.Wrap(err, d.Name)
		}
		p.Transform = lcc
	case "somerc":
		p.Transform = coord.NewSwissObliqueMercator(sph, d.Lat0*deg, orOne(d.K0))
	default:
		return nil, errors.Errorf("%s: unsupported projection %q", d.Name, d.Projection)
	}
	return p, nil
}

func orOne(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

func (d CRSDef) spheroid() (coord.Spheroid, error) {
	if d.A > 0 {
		return coord.Spheroid{Name: d.Ellipsoid, EquatorialRadius: d.A, InverseFlattening: d.Rf}, nil
	}
	name := d.Ellipsoid
	if name == "" {
		name = "WGS84"
	}
	s, ok := coord.SpheroidByName(name)
	if !ok {
		return coord.Spheroid{}, errors.Errorf("unknown ellipsoid %q", name)
	}
	return s, nil
}

func (d CRSDef) datum(sph coord.Spheroid) (coord.Datum, error) {
	name := d.Name
	switch strings.ToLower(d.Datum) {
	case "":
		if len(d.NadGrids) > 0 {
			return coord.NewGridShiftDatum(name, sph, d.NadGrids...), nil
		}
		return coord.NewDatum(name, sph, d.ToWGS84...)
	case "wgs84":
		return coord.Datum{Name: "WGS84", Type: coord.DatumWGS84, Spheroid: sph}, nil
	case "unknown", "none":
		return coord.Datum{Name: name, Type: coord.DatumUnknown, Spheroid: sph}, nil
	case "gridshift":
		if len(d.NadGrids) == 0 {
			return coord.Datum{}, errors.New("gridshift datum without nadgrids")
		}
		return coord.NewGridShiftDatum(name, sph, d.NadGrids...), nil
	}
	for _, b := range []coord.Datum{coord.NAD27Datum, coord.NAD83Datum, coord.OSGB36Datum,
		coord.CH1903Datum, coord.CH1903PlusDatum, coord.RGF93Datum, coord.WGS84Datum} {
		if strings.EqualFold(b.Name, d.Datum) {
			return b, nil
		}
	}
	return coord.Datum{}, errors.Errorf("unknown datum %q", d.Datum)
}

func (d CRSDef) meridian() (coord.Meridian, error) {
	switch strings.ToLower(d.PrimeMeridian) {
	case "", "greenwich":
		if d.PMLongitude != 0 {
			return coord.Meridian{Name: "custom", Longitude: d.PMLongitude}, nil
		}
		return coord.Greenwich, nil
	case "paris":
		return coord.Paris, nil
	case "bern":
		return coord.Bern, nil
	}
	return coord.Meridian{}, errors.Errorf("unknown prime meridian %q", d.PrimeMeridian)
}

func linearUnit(name string) (coord.LinearUnit, error) {
	switch strings.ToLower(name) {
	case "", "m", "metre", "meter":
		return coord.Meter, nil
	case "km", "kilometre", "kilometer":
		return coord.Kilometer, nil
	case "ft", "foot":
		return coord.Foot, nil
	case "us-ft", "us survey foot":
		return coord.USSurveyFoot, nil
	}
	return coord.LinearUnit{}, errors.Errorf("unknown linear unit %q", name)
}

func angularUnit(name string) (coord.AngularUnit, error) {
	switch strings.ToLower(name) {
	case "", "degree", "deg":
		return coord.Degree, nil
	case "radian", "rad":
		return coord.Radian, nil
	case "grad", "gon":
		return coord.Grad, nil
	case "arc-second", "sec":
		return coord.ArcSecond, nil
	}
	return coord.AngularUnit{}, errors.Errorf("unknown angular unit %q", name)
}

// Registry resolves user references to coordinate systems: names from
// descriptor files first, then built-in EPSG codes.
type Registry struct {
	byName map[string]*coord.ProjectionInfo
	byEPSG map[int]*coord.ProjectionInfo
	names  []string
}

// NewRegistry returns a registry holding only the built-in codes.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*coord.ProjectionInfo),
		byEPSG: make(map[int]*coord.ProjectionInfo),
	}
}

// Add registers a coordinate system under its name and EPSG code. Later
// additions win.
func (r *Registry) Add(p *coord.ProjectionInfo) {
	key := strings.ToLower(p.Name)
	if _, ok := r.byName[key]; !ok {
		r.names = append(r.names, p.Name)
	}
	r.byName[key] = p
	if p.EPSG != 0 {
		r.byEPSG[p.EPSG] = p
	}
}

// LoadFiles decodes and registers every descriptor in files.
func (r *Registry) LoadFiles(fs afero.Fs, files ...string) error {
	for _, name := range files {
		f, err := fs.Open(name)
		if err != nil {
			return errors.Wrapf(err, "opening descriptors %s", name)
		}
		defs, err := DecodeCRS(f)
		f.Close()
		if err != nil {
			return errors.Wrap(err, name)
		}
		for _, d := range defs {
			p, err := d.Build()
			if err != nil {
				return errors.Wrap(err, name)
			}
			r.Add(p)
		}
	}
	return nil
}

// Names returns the registered names in the order they were added.
func (r *Registry) Names() []string { return slices.Clone(r.names) }

// Lookup accepts "EPSG:code", a bare code or a registered name.
func (r *Registry) Lookup(ref string) (*coord.ProjectionInfo, error) {
	ref = strings.TrimSpace(ref)
	if p, ok := r.byName[strings.ToLower(ref)]; ok {
		return p, nil
	}
	code := ref
	if len(code) > 5 && strings.EqualFold(code[:5], "epsg:") {
		code = code[5:]
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return nil, errors.Errorf("unknown coordinate system %q", ref)
	}
	if p, ok := r.byEPSG[n]; ok {
		return p, nil
	}
	return coord.ForEPSG(n)
}
