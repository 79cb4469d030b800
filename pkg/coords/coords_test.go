package coords

import (
	"errors"
	"math"
	"testing"

	"github.com/akhenakh/mgrs"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) < tol
}

func TestDetect(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{"47QME8598697460", FormatMGRS},
		{"43qca8000048000", FormatMGRS},
		{"47N 500000 2200000", FormatUTM},
		{`19°51'22"N 99°49'0"E`, FormatDMS},
		{"19 51 22 N 99 48 59 E", FormatDMS},
		{"18.5204, 73.8567", FormatDecimal},
		{"-33.857 151.215", FormatDecimal},
		{"Pune, India", FormatNone},
		{"MG Road 12", FormatNone},
		{"", FormatNone},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Detect(tt.input); got != tt.want {
				t.Errorf("Detect(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantFormat Format
		wantLat    float64
		wantLon    float64
		tol        float64
	}{
		{"decimal comma", "18.5204, 73.8567", FormatDecimal, 18.5204, 73.8567, 1e-9},
		{"decimal space", "  -33.857 151.215 ", FormatDecimal, -33.857, 151.215, 1e-9},
		{"dms north east", `19°51'22"N 99°49'0"E`, FormatDMS, 19.856111, 99.816667, 1e-5},
		{"dms south", `33°51'25"S 151°12'54"E`, FormatDMS, -33.856944, 151.215, 1e-5},
		{"dms letters", "51d30m0sN 0d7m30sW", FormatDMS, 51.5, -0.125, 1e-9},
		{"utm central meridian", "47N 500000 2200000", FormatUTM, 19.9, 99.0, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, format, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.input, err)
			}
			if format != tt.wantFormat {
				t.Errorf("format = %q, want %q", format, tt.wantFormat)
			}
			if !almostEqual(loc.Latitude, tt.wantLat, tt.tol) || !almostEqual(loc.Longitude, tt.wantLon, tt.tol) {
				t.Errorf("Parse(%q) = (%f, %f), want (%f, %f)", tt.input, loc.Latitude, loc.Longitude, tt.wantLat, tt.wantLon)
			}
		})
	}
}

func TestParseUTMLongitudeExact(t *testing.T) {
	loc, _, err := Parse("43Q 500000 2000000")
	if err != nil {
		t.Fatal(err)
	}
	// zone 43 is centred on 75°E
	if !almostEqual(loc.Longitude, 75, 1e-9) {
		t.Errorf("longitude = %f, want 75", loc.Longitude)
	}
}

func TestParseSouthernUTM(t *testing.T) {
	loc, _, err := Parse("56H 334000 6252000")
	if err != nil {
		t.Fatal(err)
	}
	if loc.Latitude >= 0 {
		t.Errorf("band H should be south of the equator, got %f", loc.Latitude)
	}
}

func TestMGRSRoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		lat, lon float64
	}{
		{"Pune", 18.520, 73.857},
		{"Sydney", -33.857, 151.215},
		{"London", 51.501, -0.125},
		{"Equator", 0.0, 0.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			grid, err := mgrs.LatLngToMGRS(tc.lat, tc.lon, 5)
			if err != nil {
				t.Fatalf("LatLngToMGRS: %v", err)
			}

			loc, format, err := Parse(grid)
			if err != nil {
				t.Fatalf("Parse(%q): %v", grid, err)
			}
			if format != FormatMGRS {
				t.Errorf("format = %q", format)
			}
			if !almostEqual(loc.Latitude, tc.lat, 0.0001) || !almostEqual(loc.Longitude, tc.lon, 0.0001) {
				t.Errorf("round trip %s -> (%f, %f)", grid, loc.Latitude, loc.Longitude)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	notCoords := []string{"", "Pune, India", "Shivaji Nagar"}
	for _, input := range notCoords {
		if _, format, err := Parse(input); !errors.Is(err, ErrNotCoordinate) || format != FormatNone {
			t.Errorf("Parse(%q) = %q, %v; want ErrNotCoordinate", input, format, err)
		}
	}

	invalid := []struct {
		input  string
		format Format
	}{
		{"95.0, 10.0", FormatDecimal},
		{"10.0, 200.0", FormatDecimal},
		{`91°0'0"N 10°0'0"E`, FormatDMS},
		{`10°61'0"N 10°0'0"E`, FormatDMS},
		{"61N 500000 2200000", FormatUTM},
		{"18SUJ123456789", FormatMGRS},
	}
	for _, tt := range invalid {
		_, format, err := Parse(tt.input)
		if err == nil {
			t.Errorf("Parse(%q) expected error", tt.input)
			continue
		}
		if errors.Is(err, ErrNotCoordinate) {
			t.Errorf("Parse(%q) should be recognised as %s", tt.input, tt.format)
		}
		if format != tt.format {
			t.Errorf("Parse(%q) format = %q, want %q", tt.input, format, tt.format)
		}
	}
}
