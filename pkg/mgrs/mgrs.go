// Package mgrs converts Military Grid Reference System strings to and from
// WGS84 latitude/longitude through UTM.
//
// Only the UTM part of the grid (latitude bands C through X) is supported.
// Polar references (bands A, B, Y and Z) use UPS and are rejected.
package mgrs

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrInvalid     = errors.New("invalid MGRS reference")
	ErrUnsupported = errors.New("polar MGRS references are not supported")
)

const (
	bandLetters = "CDEFGHJKLMNPQRSTUVWX"
	rowLetters  = "ABCDEFGHJKLMNPQRSTUV"
)

// Column letters repeat every three zones.
var columnSets = [3]string{"ABCDEFGH", "JKLMNPQR", "STUVWXYZ"}

// Lowest northing (multiple of 100km) reached by each latitude band.
var bandMinNorthing = map[byte]float64{
	'C': 1100000, 'D': 2000000, 'E': 2800000, 'F': 3700000, 'G': 4600000,
	'H': 5500000, 'J': 6400000, 'K': 7300000, 'L': 8200000, 'M': 9100000,
	'N': 0, 'P': 800000, 'Q': 1700000, 'R': 2600000, 'S': 3500000,
	'T': 4400000, 'U': 5300000, 'V': 6200000, 'W': 7000000, 'X': 7900000,
}

var mgrsPattern = regexp.MustCompile(`^(\d{1,2})([A-Z])([A-Z])([A-Z])(\d*)$`)

// MGRS is a parsed grid reference.
type MGRS struct {
	Zone      int
	Band      byte
	Column    byte
	Row       byte
	Easting   int // within the 100km square, in units of the precision
	Northing  int
	Precision int // digit pairs, 0 (100km) to 5 (1m)
}

// Parse accepts references with or without separating whitespace, in any
// case, e.g. "18SUJ2337106519" or "18S UJ 23371 06519".
func Parse(s string) (MGRS, error) {
	compact := strings.ToUpper(strings.Join(strings.Fields(s), ""))
	m := mgrsPattern.FindStringSubmatch(compact)
	if m == nil {
		return MGRS{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}

	zone, _ := strconv.Atoi(m[1])
	band := m[2][0]
	switch band {
	case 'A', 'B', 'Y', 'Z':
		return MGRS{}, fmt.Errorf("%w: %q", ErrUnsupported, s)
	}
	if zone < 1 || zone > 60 {
		return MGRS{}, fmt.Errorf("%w: zone %d out of range", ErrInvalid, zone)
	}
	if !strings.ContainsRune(bandLetters, rune(band)) {
		return MGRS{}, fmt.Errorf("%w: latitude band %q", ErrInvalid, band)
	}

	col, row := m[3][0], m[4][0]
	if strings.IndexByte(columnSet(zone), col) < 0 {
		return MGRS{}, fmt.Errorf("%w: column letter %q not used in zone %d", ErrInvalid, col, zone)
	}
	if strings.IndexByte(rowLetters, row) < 0 {
		return MGRS{}, fmt.Errorf("%w: row letter %q", ErrInvalid, row)
	}

	digits := m[5]
	if len(digits)%2 != 0 || len(digits) > 10 {
		return MGRS{}, fmt.Errorf("%w: %d digits, expected an even count up to 10", ErrInvalid, len(digits))
	}
	p := len(digits) / 2
	ref := MGRS{Zone: zone, Band: band, Column: col, Row: row, Precision: p}
	if p > 0 {
		ref.Easting, _ = strconv.Atoi(digits[:p])
		ref.Northing, _ = strconv.Atoi(digits[p:])
	}
	return ref, nil
}

// String renders the compact form, e.g. "18SUJ2337106519".
func (m MGRS) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d%c%c%c", m.Zone, m.Band, m.Column, m.Row)
	if m.Precision > 0 {
		fmt.Fprintf(&b, "%0*d%0*d", m.Precision, m.Easting, m.Precision, m.Northing)
	}
	return b.String()
}

// Resolution returns the cell size in meters.
func (m MGRS) Resolution() float64 {
	return math.Pow10(5 - m.Precision)
}

// UTM returns the zone, hemisphere and coordinates of the cell centre.
func (m MGRS) UTM() (zone int, south bool, easting, northing float64) {
	res := m.Resolution()
	col := strings.IndexByte(columnSet(m.Zone), m.Column)
	easting = float64(col+1)*100000 + float64(m.Easting)*res + res/2

	row := strings.IndexByte(rowLetters, m.Row)
	north100k := float64(((row-rowOffset(m.Zone))%20+20)%20) * 100000
	for north100k < bandMinNorthing[m.Band] {
		north100k += 2000000
	}
	northing = north100k + float64(m.Northing)*res + res/2
	return m.Zone, m.Band < 'N', easting, northing
}

// LatLon returns the WGS84 centre of the grid cell.
func (m MGRS) LatLon() (lat, lon float64, err error) {
	zone, south, e, n := m.UTM()
	return fromUTM(zone, south, e, n)
}

// ToLatLon parses s and returns the centre of the referenced cell.
func ToLatLon(s string) (lat, lon float64, err error) {
	ref, err := Parse(s)
	if err != nil {
		return 0, 0, err
	}
	return ref.LatLon()
}

// FromLatLon builds the reference containing the point at the given
// precision (0-5 digit pairs).
func FromLatLon(lat, lon float64, precision int) (MGRS, error) {
	if precision < 0 || precision > 5 {
		return MGRS{}, fmt.Errorf("%w: precision %d", ErrInvalid, precision)
	}
	if math.IsNaN(lat) || math.IsNaN(lon) || lon < -180 || lon > 180 {
		return MGRS{}, fmt.Errorf("%w: coordinates %f,%f", ErrInvalid, lat, lon)
	}
	if lat < -80 || lat > 84 {
		return MGRS{}, fmt.Errorf("%w: latitude %f", ErrUnsupported, lat)
	}

	zone, e, n, err := toUTM(lat, lon)
	if err != nil {
		return MGRS{}, err
	}

	col := int(math.Floor(e/100000)) - 1
	set := columnSet(zone)
	if col < 0 || col >= len(set) {
		return MGRS{}, fmt.Errorf("%w: easting %f outside zone %d", ErrInvalid, e, zone)
	}
	row := (int(math.Floor(n/100000)) + rowOffset(zone)) % 20

	div := int(math.Pow10(5 - precision))
	return MGRS{
		Zone:      zone,
		Band:      bandFor(lat),
		Column:    set[col],
		Row:       rowLetters[row],
		Easting:   (int(math.Floor(e)) % 100000) / div,
		Northing:  (int(math.Floor(n)) % 100000) / div,
		Precision: precision,
	}, nil
}

func columnSet(zone int) string {
	return columnSets[(zone-1)%3]
}

// Even zones start their row lettering at F.
func rowOffset(zone int) int {
	if zone%2 == 0 {
		return 5
	}
	return 0
}

func bandFor(lat float64) byte {
	i := int(math.Floor((lat + 80) / 8))
	if i < 0 {
		i = 0
	}
	if i > len(bandLetters)-1 {
		i = len(bandLetters) - 1
	}
	return bandLetters[i]
}
