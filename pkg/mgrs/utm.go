package mgrs

import (
	"fmt"

	"github.com/im7mortal/UTM"
)

// toUTM projects a WGS84 point into its UTM zone, including the Norway and
// Svalbard zone exceptions.
func toUTM(lat, lon float64) (zone int, easting, northing float64, err error) {
	// 180°E is the same meridian as 180°W, which belongs to zone 1.
	if lon == 180 {
		lon = -180
	}
	easting, northing, zone, _, err = UTM.FromLatLon(lat, lon, lat >= 0)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return zone, easting, northing, nil
}

func fromUTM(zone int, south bool, easting, northing float64) (lat, lon float64, err error) {
	lat, lon, err = UTM.ToLatLon(easting, northing, zone, "", !south)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return lat, lon, nil
}
