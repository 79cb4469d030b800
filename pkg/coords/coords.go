// Package coords recognises trip endpoints given as coordinates instead of
// addresses, so they can be routed without geocoding.
//
// Accepted notations:
//   - decimal degrees: "18.5204, 73.8567" or "18.5204 73.8567"
//   - degrees minutes seconds: 18°31'13"N 73°51'24"E
//   - UTM: "43Q 380000 2048000"
//   - MGRS: "43QCA8000048000"
package coords

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/akhenakh/mgrs"

	"github.com/NERVsystems/ecoroute/pkg/geo"
)

// Format names a coordinate notation
type Format string

// Supported notations. FormatNone means the input is not a coordinate.
const (
	FormatNone    Format = ""
	FormatDecimal Format = "decimal"
	FormatDMS     Format = "dms"
	FormatUTM     Format = "utm"
	FormatMGRS    Format = "mgrs"
)

// ErrNotCoordinate is returned by Parse for input that matches no notation
var ErrNotCoordinate = errors.New("not a coordinate")

var (
	// zone, latitude band (no I or O), 100km square, 2 to 10 digits
	mgrsPattern = regexp.MustCompile(`(?i)^(\d{1,2})([C-HJ-NP-X])([A-HJ-NP-Z]{2})(\d{2,10})$`)

	// zone, band letter, easting, northing
	utmPattern = regexp.MustCompile(`(?i)^(\d{1,2})([A-Z])\s+(\d+(?:\.\d+)?)\s+(\d+(?:\.\d+)?)$`)

	dmsPattern = regexp.MustCompile(`(?i)^(\d+)[°d\s]+(\d+)[′'m\s]+(\d+(?:\.\d+)?)[″"s]?\s*([NS])[\s,]+(\d+)[°d\s]+(\d+)[′'m\s]+(\d+(?:\.\d+)?)[″"s]?\s*([EW])$`)

	decimalPattern = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)\s*[,\s]\s*(-?\d+(?:\.\d+)?)$`)
)

// Detect reports the notation input appears to use without converting it.
// Patterns are tried from most to least specific.
func Detect(input string) Format {
	s := strings.TrimSpace(input)
	switch {
	case s == "":
		return FormatNone
	case mgrsPattern.MatchString(s):
		return FormatMGRS
	case utmPattern.MatchString(s):
		return FormatUTM
	case dmsPattern.MatchString(s):
		return FormatDMS
	case decimalPattern.MatchString(s):
		return FormatDecimal
	default:
		return FormatNone
	}
}

// Parse converts input to WGS84 decimal degrees. It returns ErrNotCoordinate
// when the input matches no notation, and a descriptive error when it looks
// like a coordinate but is out of range.
func Parse(input string) (geo.Location, Format, error) {
	s := strings.TrimSpace(input)

	var (
		loc geo.Location
		err error
	)
	format := Detect(s)
	switch format {
	case FormatMGRS:
		loc, err = parseMGRS(s)
	case FormatUTM:
		loc, err = parseUTM(s)
	case FormatDMS:
		loc, err = parseDMS(s)
	case FormatDecimal:
		loc, err = parseDecimal(s)
	default:
		return geo.Location{}, FormatNone, ErrNotCoordinate
	}
	if err != nil {
		return geo.Location{}, format, fmt.Errorf("%s coordinate %q: %w", format, s, err)
	}
	if err := checkRange(loc); err != nil {
		return geo.Location{}, format, fmt.Errorf("%s coordinate %q: %w", format, s, err)
	}
	return loc, format, nil
}

func checkRange(loc geo.Location) error {
	if math.IsNaN(loc.Latitude) || loc.Latitude < -90 || loc.Latitude > 90 {
		return fmt.Errorf("latitude %f out of range", loc.Latitude)
	}
	if math.IsNaN(loc.Longitude) || loc.Longitude < -180 || loc.Longitude > 180 {
		return fmt.Errorf("longitude %f out of range", loc.Longitude)
	}
	return nil
}

func parseMGRS(s string) (geo.Location, error) {
	lat, lon, err := mgrs.MGRSToLatLng(strings.ToUpper(s))
	if err != nil {
		return geo.Location{}, err
	}
	return geo.Location{Latitude: lat, Longitude: lon}, nil
}

func parseUTM(s string) (geo.Location, error) {
	m := utmPattern.FindStringSubmatch(strings.ToUpper(s))

	zone, err := strconv.Atoi(m[1])
	if err != nil || zone < 1 || zone > 60 {
		return geo.Location{}, fmt.Errorf("zone %s must be between 1 and 60", m[1])
	}
	easting, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return geo.Location{}, fmt.Errorf("easting %s: %w", m[3], err)
	}
	northing, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return geo.Location{}, fmt.Errorf("northing %s: %w", m[4], err)
	}

	// bands C to M lie south of the equator
	northern := m[2][0] >= 'N'
	lat, lon := utmToLatLon(zone, easting, northing, northern)
	return geo.Location{Latitude: lat, Longitude: lon}, nil
}

func parseDMS(s string) (geo.Location, error) {
	m := dmsPattern.FindStringSubmatch(s)

	lat, err := dmsToDegrees(m[1], m[2], m[3], 90)
	if err != nil {
		return geo.Location{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := dmsToDegrees(m[5], m[6], m[7], 180)
	if err != nil {
		return geo.Location{}, fmt.Errorf("longitude: %w", err)
	}
	if strings.EqualFold(m[4], "S") {
		lat = -lat
	}
	if strings.EqualFold(m[8], "W") {
		lon = -lon
	}
	return geo.Location{Latitude: lat, Longitude: lon}, nil
}

func dmsToDegrees(deg, min, sec string, maxDeg float64) (float64, error) {
	d, _ := strconv.ParseFloat(deg, 64)
	m, _ := strconv.ParseFloat(min, 64)
	s, _ := strconv.ParseFloat(sec, 64)
	if d > maxDeg || m >= 60 || s >= 60 {
		return 0, fmt.Errorf("%s°%s'%s\" is not a valid angle", deg, min, sec)
	}
	return d + m/60 + s/3600, nil
}

func parseDecimal(s string) (geo.Location, error) {
	m := decimalPattern.FindStringSubmatch(s)

	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return geo.Location{}, fmt.Errorf("latitude %s: %w", m[1], err)
	}
	lon, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return geo.Location{}, fmt.Errorf("longitude %s: %w", m[2], err)
	}
	return geo.Location{Latitude: lat, Longitude: lon}, nil
}

// utmToLatLon inverts the transverse Mercator projection on the WGS84
// ellipsoid using the series expansion from USGS Professional Paper 1395.
func utmToLatLon(zone int, easting, northing float64, northern bool) (lat, lon float64) {
	const (
		a  = 6378137.0
		f  = 1 / 298.257223563
		k0 = 0.9996
	)

	b := a * (1 - f)
	e2 := (a*a - b*b) / (a * a)
	ep2 := (a*a - b*b) / (b * b)
	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))

	x := easting - 500000.0
	y := northing
	if !northern {
		y -= 10000000.0
	}

	lon0 := float64((zone-1)*6-180+3) * math.Pi / 180.0

	mu := y / k0 / (a * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))
	phi1 := mu +
		(3*e1/2-27*e1*e1*e1/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*e1*e1*e1*e1/32)*math.Sin(4*mu) +
		(151*e1*e1*e1/96)*math.Sin(6*mu) +
		(1097*e1*e1*e1*e1/512)*math.Sin(8*mu)

	sin1, cos1, tan1 := math.Sin(phi1), math.Cos(phi1), math.Tan(phi1)
	n1 := a / math.Sqrt(1-e2*sin1*sin1)
	t1 := tan1 * tan1
	c1 := ep2 * cos1 * cos1
	r1 := a * (1 - e2) / math.Pow(1-e2*sin1*sin1, 1.5)
	d := x / (n1 * k0)

	lat = phi1 - (n1*tan1/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*d*d*d*d/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*d*d*d*d*d*d/720)
	lon = lon0 + (d-
		(1+2*t1+c1)*d*d*d/6+
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*d*d*d*d*d/120)/cos1

	return lat * 180 / math.Pi, lon * 180 / math.Pi
}
