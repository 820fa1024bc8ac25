package export

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/twpayne/go-kml"

	"github.com/rubiojr/scout/pkg/core"
	"github.com/rubiojr/scout/pkg/schema"
	"github.com/rubiojr/scout/pkg/testutil"
)

func setup(t *testing.T, path string) (*sql.DB, *schema.Catalog) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	cat, err := schema.Build(context.Background(), db, schema.Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return db, cat
}

type kmlRoot struct {
	XMLName  xml.Name
	Document struct {
		Name       string         `xml:"name"`
		Placemarks []kmlPlacemark `xml:"Placemark"`
	} `xml:"Document"`
}

type kmlPlacemark struct {
	Name         string `xml:"name"`
	Description  string `xml:"description"`
	ExtendedData struct {
		Data []struct {
			Name  string `xml:"name,attr"`
			Value string `xml:"value"`
		} `xml:"Data"`
	} `xml:"ExtendedData"`
	Point         *kmlPoint `xml:"Point"`
	MultiGeometry *struct {
		Points []kmlPoint `xml:"Point"`
	} `xml:"MultiGeometry"`
}

type kmlPoint struct {
	Coordinates string `xml:"coordinates"`
}

func decode(t *testing.T, data []byte) kmlRoot {
	t.Helper()
	var root kmlRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		t.Fatalf("invalid KML: %v\n%s", err, data)
	}
	return root
}

func TestExportKML(t *testing.T) {
	db, cat := setup(t, testutil.ReportsDB(t))
	e := NewExporter(Options{})

	doc, err := e.Export(context.Background(), db, cat, &Request{Table: "reports", Limit: 3})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	m := doc.Metadata
	if m.Requested != 3 || m.Exported != 2 || m.Skipped != 1 {
		t.Errorf("expected 3 requested, 2 exported, 1 skipped, got %+v", m)
	}
	if m.CoordinateField != "MGRS" || m.ExportID == "" {
		t.Errorf("unexpected metadata %+v", m)
	}
	if len(m.Errors) != 1 || !strings.Contains(m.Errors[0], "r3") {
		t.Errorf("expected an error for r3, got %v", m.Errors)
	}
	if doc.ContentType() != ContentTypeKML {
		t.Errorf("content type %s", doc.ContentType())
	}

	root := decode(t, doc.Data)
	if root.XMLName.Local != "kml" || root.XMLName.Space != kml.Namespace {
		t.Errorf("root element %+v", root.XMLName)
	}
	pms := root.Document.Placemarks
	if len(pms) != 2 || pms[0].Name != "r1" || pms[1].Name != "r2" {
		t.Fatalf("unexpected placemarks %+v", pms)
	}
	if pms[0].Point == nil || !strings.HasPrefix(pms[0].Point.Coordinates, "-77.") {
		t.Errorf("r1 should sit near Washington DC, got %+v", pms[0].Point)
	}
	if pms[1].Description != "CONFIDENTIAL" {
		t.Errorf("description: %q", pms[1].Description)
	}
	attrs := map[string]string{}
	for _, d := range pms[0].ExtendedData.Data {
		attrs[d.Name] = d.Value
	}
	if _, ok := attrs["MGRS"]; ok {
		t.Errorf("extended data repeats the coordinate field")
	}
	if attrs["id"] != "r1" || attrs["locations"] != "Washington DC" {
		t.Errorf("extended data should carry every other field, got %v", attrs)
	}
}

func TestExportFilteredAndMissing(t *testing.T) {
	db, cat := setup(t, testutil.ReportsDB(t))
	e := NewExporter(Options{})

	doc, err := e.Export(context.Background(), db, cat, &Request{Table: "reports", Query: "border"})
	if err != nil {
		t.Fatal(err)
	}
	m := doc.Metadata
	if m.Requested != 2 || m.Exported != 1 || m.Skipped != 1 {
		t.Errorf("border reports: %+v", m)
	}
	if len(m.Errors) != 1 || !strings.Contains(m.Errors[0], "no coordinate") {
		t.Errorf("r5 has no MGRS value: %v", m.Errors)
	}
}

func TestExportMultiGeometry(t *testing.T) {
	path := testutil.NewDB(t, "sites.db",
		`CREATE TABLE sites (id TEXT PRIMARY KEY, name TEXT, mgrs TEXT)`,
		`INSERT INTO sites VALUES ('s1', 'pair', '18SUJ2337106519; 31UDQ4825111932'), ('s2', 'mixed', '56HLH3436848815,bogus')`,
	)
	db, cat := setup(t, path)

	doc, err := NewExporter(Options{}).Export(context.Background(), db, cat, &Request{Table: "sites", CoordinateField: "MGRS", Format: "KMZ"})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if doc.Format != FormatKMZ || doc.ContentType() != ContentTypeKMZ {
		t.Errorf("format %s", doc.Format)
	}
	zr, err := zip.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	if err != nil {
		t.Fatalf("invalid KMZ: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "doc.kml" {
		t.Fatalf("unexpected KMZ entries %v", zr.File)
	}
	f, err := zr.File[0].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	kml, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}

	pms := decode(t, kml).Document.Placemarks
	if len(pms) != 2 {
		t.Fatalf("expected 2 placemarks, got %d", len(pms))
	}
	if pms[0].MultiGeometry == nil || len(pms[0].MultiGeometry.Points) != 2 {
		t.Errorf("s1 should be a multi geometry: %+v", pms[0])
	}
	if pms[1].Point == nil {
		t.Errorf("s2 keeps its one valid reference: %+v", pms[1])
	}
	if doc.Metadata.Exported != 2 || doc.Metadata.Skipped != 0 {
		t.Errorf("metadata %+v", doc.Metadata)
	}
}

func TestExportErrors(t *testing.T) {
	db, cat := setup(t, testutil.ReportsDB(t))
	e := NewExporter(Options{})

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"unknown table", Request{Table: "nope"}, core.ErrNotFound},
		{"no coordinate field", Request{Table: "test_data"}, core.ErrInvalidQuery},
		{"unknown coordinate field", Request{Table: "reports", CoordinateField: "grid"}, core.ErrInvalidQuery},
		{"format", Request{Table: "reports", Format: "gpx"}, core.ErrInvalidQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Export(context.Background(), db, cat, &tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestEverySkippedRowIsReported(t *testing.T) {
	stmts := []string{`CREATE TABLE sites (id INTEGER PRIMARY KEY, mgrs TEXT)`}
	for i := range 30 {
		stmts = append(stmts, fmt.Sprintf(`INSERT INTO sites (mgrs) VALUES ('bad%d')`, i))
	}
	stmts = append(stmts, `INSERT INTO sites (mgrs) VALUES ('18SUJ2337106519')`)
	db, cat := setup(t, testutil.NewDB(t, "bad.db", stmts...))

	doc, err := NewExporter(Options{}).Export(context.Background(), db, cat, &Request{Table: "sites"})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	m := doc.Metadata
	if m.Requested != 31 || m.Exported != 1 || m.Skipped != 30 {
		t.Errorf("metadata %+v", m)
	}
	if len(m.Errors) != 30 || m.ErrorsOmitted != 0 {
		t.Errorf("expected 30 errors, got %d (%d omitted)", len(m.Errors), m.ErrorsOmitted)
	}

	s := m.Summary(20)
	if len(s.Errors) != 20 || s.ErrorsOmitted != 10 {
		t.Errorf("summary: %d errors, %d omitted", len(s.Errors), s.ErrorsOmitted)
	}
	if len(m.Errors) != 30 {
		t.Errorf("Summary modified the original metadata")
	}
	if s := m.Summary(50); len(s.Errors) != 30 || s.ErrorsOmitted != 0 {
		t.Errorf("summary under the limit: %+v", s)
	}
}
