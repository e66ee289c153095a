package coord

import (
	"math"
	"slices"
	"strconv"

	"github.com/pkg/errors"
)

// ErrUnknownEPSG is returned by ForEPSG for codes outside the built-in set.
var ErrUnknownEPSG = errors.New("unsupported EPSG code")

const deg = math.Pi / 180

// Built-in datums.
var (
	NAD83Datum = Datum{Name: "North American Datum 1983", Type: DatumWGS84, Spheroid: GRS80Spheroid}
	NAD27Datum = NewGridShiftDatum("North American Datum 1927", Clarke1866Spheroid,
		"@conus", "@alaska", "@ntv2_0.gsb", "@ntv1_can.dat")
	OSGB36Datum = Datum{
		Name: "OSGB 1936", Type: DatumParam7, Spheroid: Airy1830Spheroid,
		ToWGS84: [7]float64{446.448, -125.157, 542.060, 0.1502, 0.2470, 0.8421, -20.4894},
	}
	CH1903PlusDatum = Datum{
		Name: "CH1903+", Type: DatumParam3, Spheroid: Bessel1841Spheroid,
		ToWGS84: [7]float64{674.374, 15.056, 405.346},
	}
	CH1903Datum = Datum{
		Name: "CH1903", Type: DatumParam3, Spheroid: Bessel1841Spheroid,
		ToWGS84: [7]float64{674.4, 15.1, 405.3},
	}
	RGF93Datum = Datum{Name: "Reseau Geodesique Francais 1993", Type: DatumWGS84, Spheroid: GRS80Spheroid}
)

func geographic(name string, d Datum) GeographicInfo {
	return GeographicInfo{Name: name, Datum: d, Meridian: Greenwich, Unit: Degree}
}

// LongLat returns a geographic system in degrees on the given datum.
func LongLat(name string, epsg int, d Datum) *ProjectionInfo {
	return &ProjectionInfo{
		Name:           name,
		EPSG:           epsg,
		GeographicInfo: geographic(name, d),
		Unit:           Meter,
		IsLatLon:       true,
	}
}

// Geocentric returns an earth-centred cartesian system in meters.
func Geocentric(name string, epsg int, d Datum) *ProjectionInfo {
	return &ProjectionInfo{
		Name:           name,
		EPSG:           epsg,
		GeographicInfo: geographic(name, d),
		Unit:           Meter,
		IsGeocentric:   true,
	}
}

// UTM returns the UTM zone (1-60) on datum d.
func UTM(name string, epsg int, d Datum, zone int, south bool) *ProjectionInfo {
	p := &ProjectionInfo{
		Name:            name,
		EPSG:            epsg,
		GeographicInfo:  geographic(d.Name, d),
		Unit:            Meter,
		FalseEasting:    500000,
		CentralMeridian: UTMCentralMeridian(zone),
		Transform:       NewUTM(d.Spheroid),
	}
	if south {
		p.FalseNorthing = 10000000
	}
	return p
}

// ForEPSG returns the descriptor for one of the built-in EPSG codes.
func ForEPSG(epsg int) (*ProjectionInfo, error) {
	switch {
	case epsg == 4326:
		return LongLat("WGS 84", 4326, WGS84Datum), nil
	case epsg == 4269:
		return LongLat("NAD83", 4269, NAD83Datum), nil
	case epsg == 4267:
		return LongLat("NAD27", 4267, NAD27Datum), nil
	case epsg == 4277:
		return LongLat("OSGB 1936", 4277, OSGB36Datum), nil
	case epsg == 4150:
		return LongLat("CH1903+", 4150, CH1903PlusDatum), nil
	case epsg == 4171:
		return LongLat("RGF93", 4171, RGF93Datum), nil
	case epsg == 4978:
		return Geocentric("WGS 84 (geocentric)", 4978, WGS84Datum), nil
	case epsg == 3857:
		return &ProjectionInfo{
			Name:           "WGS 84 / Pseudo-Mercator",
			EPSG:           3857,
			GeographicInfo: geographic("WGS 84", WGS84Datum),
			Unit:           Meter,
			Transform:      NewWebMercator(),
		}, nil
	case epsg == 3395:
		return &ProjectionInfo{
			Name:           "WGS 84 / World Mercator",
			EPSG:           3395,
			GeographicInfo: geographic("WGS 84", WGS84Datum),
			Unit:           Meter,
			Transform:      NewMercator(WGS84Spheroid, 1, 0),
		}, nil
	case epsg == 27700:
		return &ProjectionInfo{
			Name:            "OSGB 1936 / British National Grid",
			EPSG:            27700,
			GeographicInfo:  geographic("OSGB 1936", OSGB36Datum),
			Unit:            Meter,
			FalseEasting:    400000,
			FalseNorthing:   -100000,
			CentralMeridian: -2 * deg,
			Transform:       NewTransverseMercator(Airy1830Spheroid, 0.9996012717, 49*deg),
		}, nil
	case epsg == 2056 || epsg == 21781:
		return swissGrid(epsg), nil
	case epsg == 2154:
		lcc, err := NewLambertConformalConic(GRS80Spheroid, 46.5*deg, 49*deg, 44*deg, 1)
		if err != nil {
			return nil, err
		}
		return &ProjectionInfo{
			Name:            "RGF93 / Lambert-93",
			EPSG:            2154,
			GeographicInfo:  geographic("RGF93", RGF93Datum),
			Unit:            Meter,
			FalseEasting:    700000,
			FalseNorthing:   6600000,
			CentralMeridian: 3 * deg,
			Transform:       lcc,
		}, nil
	case epsg >= 32601 && epsg <= 32660:
		return UTM("WGS 84 / UTM zone "+zoneName(epsg-32600, "N"), epsg, WGS84Datum, epsg-32600, false), nil
	case epsg >= 32701 && epsg <= 32760:
		return UTM("WGS 84 / UTM zone "+zoneName(epsg-32700, "S"), epsg, WGS84Datum, epsg-32700, true), nil
	case epsg >= 26903 && epsg <= 26923:
		return UTM("NAD83 / UTM zone "+zoneName(epsg-26900, "N"), epsg, NAD83Datum, epsg-26900, false), nil
	case epsg >= 26703 && epsg <= 26722:
		return UTM("NAD27 / UTM zone "+zoneName(epsg-26700, "N"), epsg, NAD27Datum, epsg-26700, false), nil
	}
	return nil, errors.Wrapf(ErrUnknownEPSG, "EPSG:%d", epsg)
}

func swissGrid(epsg int) *ProjectionInfo {
	lat0, lon0 := 46.95240555555556*deg, 7.439583333333333*deg
	p := &ProjectionInfo{
		EPSG:            epsg,
		Unit:            Meter,
		CentralMeridian: lon0,
		Transform:       NewSwissObliqueMercator(Bessel1841Spheroid, lat0, 1),
	}
	if epsg == 2056 {
		p.Name = "CH1903+ / LV95"
		p.GeographicInfo = geographic("CH1903+", CH1903PlusDatum)
		p.FalseEasting, p.FalseNorthing = 2600000, 1200000
	} else {
		p.Name = "CH1903 / LV03"
		p.GeographicInfo = geographic("CH1903", CH1903Datum)
		p.FalseEasting, p.FalseNorthing = 600000, 200000
	}
	return p
}

func zoneName(zone int, hemisphere string) string {
	return strconv.Itoa(zone) + hemisphere
}

// BuiltinEPSG lists the codes ForEPSG understands, in ascending order.
func BuiltinEPSG() []int {
	codes := []int{4326, 4269, 4267, 4277, 4150, 4171, 4978, 3857, 3395, 27700, 2056, 21781, 2154}
	for z := 1; z <= 60; z++ {
		codes = append(codes, 32600+z, 32700+z)
	}
	for z := 3; z <= 23; z++ {
		codes = append(codes, 26900+z)
	}
	for z := 3; z <= 22; z++ {
		codes = append(codes, 26700+z)
	}
	slices.Sort(codes)
	return codes
}
