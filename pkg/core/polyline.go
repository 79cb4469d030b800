package core

import (
	"errors"
	"math"

	"github.com/NERVsystems/ecoroute/pkg/geo"
)

// polylinePrecision is the scale of the Polyline5 format
const polylinePrecision = 1e5

var errPolylineTruncated = errors.New("invalid polyline: unexpected end of string")

// EncodePolyline encodes points with Google's Polyline Algorithm Format at
// five decimal places, the geometry format OSRM returns by default.
func EncodePolyline(points []geo.Location) string {
	if len(points) == 0 {
		return ""
	}

	out := make([]byte, 0, len(points)*12)
	var prevLat, prevLon int
	for _, p := range points {
		lat := int(math.Round(p.Latitude * polylinePrecision))
		lon := int(math.Round(p.Longitude * polylinePrecision))
		out = appendPolylineValue(out, lat-prevLat)
		out = appendPolylineValue(out, lon-prevLon)
		prevLat, prevLon = lat, lon
	}
	return string(out)
}

// DecodePolyline is the inverse of EncodePolyline
func DecodePolyline(polyline string) ([]geo.Location, error) {
	points := make([]geo.Location, 0, len(polyline)/8+1)

	var lat, lon int
	for i := 0; i < len(polyline); {
		dLat, next, err := readPolylineValue(polyline, i)
		if err != nil {
			return nil, err
		}
		dLon, next, err := readPolylineValue(polyline, next)
		if err != nil {
			return nil, err
		}
		i = next

		lat += dLat
		lon += dLon
		points = append(points, geo.Location{
			Latitude:  float64(lat) / polylinePrecision,
			Longitude: float64(lon) / polylinePrecision,
		})
	}

	return points, nil
}

// readPolylineValue decodes one zigzag varint starting at i
func readPolylineValue(s string, i int) (int, int, error) {
	var result, shift int
	for {
		if i >= len(s) {
			return 0, 0, errPolylineTruncated
		}
		b := int(s[i]) - 63
		i++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}
	return (result >> 1) ^ -(result & 1), i, nil
}

// appendPolylineValue appends one zigzag varint
func appendPolylineValue(buf []byte, v int) []byte {
	s := v << 1
	if v < 0 {
		s = ^s
	}
	for s >= 0x20 {
		buf = append(buf, byte((0x20|(s&0x1f))+63))
		s >>= 5
	}
	return append(buf, byte(s+63))
}
