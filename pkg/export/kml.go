package export

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zip"
	"github.com/twpayne/go-kml"
)

// point holds a WGS84 position.
type point struct {
	Lat, Lon float64
}

// coordinate rounds to six decimals, roughly 0.1 m.
func (p point) coordinate() kml.Coordinate {
	return kml.Coordinate{
		Lon: math.Round(p.Lon*1e6) / 1e6,
		Lat: math.Round(p.Lat*1e6) / 1e6,
	}
}

// attribute is one ExtendedData entry.
type attribute struct {
	Name  string
	Value string
}

func placemarkElement(name, description string, attrs []attribute, points []point) *kml.CompoundElement {
	pm := kml.Placemark(kml.Name(name))
	if description != "" {
		pm.Add(kml.Description(description))
	}
	if len(attrs) > 0 {
		ext := kml.ExtendedData()
		for _, a := range attrs {
			ext.Add(dataElement(a.Name, a.Value))
		}
		pm.Add(ext)
	}
	if len(points) == 1 {
		return pm.Add(kml.Point(kml.Coordinates(points[0].coordinate())))
	}
	mg := kml.MultiGeometry()
	for _, p := range points {
		mg.Add(kml.Point(kml.Coordinates(p.coordinate())))
	}
	return pm.Add(mg)
}

// dataElement builds <Data name="..."><value>...</value></Data>.
func dataElement(name, value string) *kml.CompoundElement {
	d := kml.Data(kml.Value(value))
	d.Attr = append(d.Attr, xml.Attr{Name: xml.Name{Local: "name"}, Value: name})
	return d
}

func writeKML(w io.Writer, doc *kml.CompoundElement) error {
	if err := kml.KML(doc).WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("encoding KML: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// kmz wraps a KML document into a zip archive as doc.kml.
func kmz(doc []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("doc.kml")
	if err != nil {
		return nil, fmt.Errorf("creating KMZ entry: %w", err)
	}
	if _, err := f.Write(doc); err != nil {
		return nil, fmt.Errorf("writing KMZ entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing KMZ archive: %w", err)
	}
	return buf.Bytes(), nil
}
