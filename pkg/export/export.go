// Package export renders search results carrying MGRS grid references as
// KML placemarks, optionally zipped as KMZ.
package export

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/twpayne/go-kml"

	"github.com/rubiojr/scout/pkg/core"
	"github.com/rubiojr/scout/pkg/log"
	"github.com/rubiojr/scout/pkg/mgrs"
	"github.com/rubiojr/scout/pkg/schema"
	"github.com/rubiojr/scout/pkg/search"
)

var logger = log.ForService("export")

const (
	FormatKML = "kml"
	FormatKMZ = "kmz"

	ContentTypeKML = "application/vnd.google-earth.kml+xml"
	ContentTypeKMZ = "application/vnd.google-earth.kmz"
)

// Request selects the rows to export.
type Request struct {
	Table           string
	Query           string
	Filters         map[string]any
	CoordinateField string
	Limit           int
	Format          string
}

// Metadata describes one export. Exported + Skipped == Requested, and
// Errors holds one entry per skipped row.
type Metadata struct {
	ExportID        string   `json:"export_id"`
	Table           string   `json:"table"`
	CoordinateField string   `json:"coordinate_field"`
	Requested       int      `json:"requested"`
	Exported        int      `json:"exported"`
	Skipped         int      `json:"skipped"`
	Errors          []string `json:"errors"`
	// ErrorsOmitted counts the entries Summary dropped from Errors.
	ErrorsOmitted int `json:"errors_omitted,omitempty"`
}

// Summary returns a copy of m keeping at most n errors, for places where
// the full list does not fit, such as a response header.
func (m Metadata) Summary(n int) Metadata {
	if n < 0 || len(m.Errors) <= n {
		return m
	}
	m.ErrorsOmitted += len(m.Errors) - n
	m.Errors = slices.Clone(m.Errors[:n])
	return m
}

// Document is a rendered export.
type Document struct {
	Metadata Metadata
	Format   string
	Data     []byte
}

func (d *Document) ContentType() string {
	if d.Format == FormatKMZ {
		return ContentTypeKMZ
	}
	return ContentTypeKML
}

// Options bound export sizes.
type Options struct {
	DefaultLimit int
	MaxLimit     int
}

// Exporter runs exports through its own search executor so export limits are
// independent of search limits.
type Exporter struct {
	opts     Options
	executor *search.Executor
}

func NewExporter(opts Options) *Exporter {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10000
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 50000
	}
	opts.DefaultLimit = min(opts.DefaultLimit, opts.MaxLimit)
	return &Exporter{
		opts:     opts,
		executor: search.NewExecutor(search.Limits{DefaultSize: opts.DefaultLimit, MaxSize: opts.MaxLimit}),
	}
}

// Export runs req and renders every hit with a parsable coordinate as a
// placemark.
func (e *Exporter) Export(ctx context.Context, db *sql.DB, cat *schema.Catalog, req *Request) (*Document, error) {
	format := strings.ToLower(req.Format)
	switch format {
	case "":
		format = FormatKML
	case FormatKML, FormatKMZ:
	default:
		return nil, core.InvalidQuery("export", "unsupported export format %q", req.Format)
	}

	td, err := cat.Describe(req.Table)
	if err != nil {
		return nil, err
	}
	coord, err := coordinateField(td, req.CoordinateField)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = e.opts.DefaultLimit
	}
	res, err := e.executor.Search(ctx, db, cat, &search.Request{
		Table:      td.Name,
		Query:      req.Query,
		Filters:    req.Filters,
		Size:       min(limit, e.opts.MaxLimit),
		UseDSL:     true,
		SkipFacets: true,
	})
	if err != nil {
		return nil, err
	}

	meta := Metadata{
		ExportID:        uuid.New().String(),
		Table:           td.Name,
		CoordinateField: coord,
		Requested:       len(res.Hits),
		Errors:          []string{},
	}
	nameField := ""
	if len(td.IDFields) > 0 {
		nameField = td.IDFields[0]
	}

	doc := kml.Document(
		kml.Name(td.Name),
		kml.Description(fmt.Sprintf("%s export %s", td.Name, meta.ExportID)),
	)
	for _, h := range res.Hits {
		points, errs := parsePoints(h.Source[coord])
		if len(points) == 0 {
			meta.Skipped++
			if len(errs) == 0 {
				errs = []string{"no coordinate"}
			}
			meta.Errors = append(meta.Errors, fmt.Sprintf("row %v: %s", h.ID, strings.Join(errs, "; ")))
			continue
		}
		meta.Exported++
		doc.Add(placemark(h, td, nameField, coord, points))
	}

	var buf bytes.Buffer
	if err := writeKML(&buf, doc); err != nil {
		return nil, core.Internal("export", err)
	}
	data := buf.Bytes()
	if format == FormatKMZ {
		if data, err = kmz(data); err != nil {
			return nil, core.Internal("export", err)
		}
	}

	logger.Debugf("export %s %s: %d requested, %d exported, %d skipped", meta.ExportID, td.Name, meta.Requested, meta.Exported, meta.Skipped)
	return &Document{Metadata: meta, Format: format, Data: data}, nil
}

// coordinateField resolves the requested field, or picks the first
// coordinate field of the table.
func coordinateField(td schema.TableDescriptor, name string) (string, error) {
	if name != "" {
		f, ok := td.Field(name)
		if !ok {
			return "", core.InvalidQuery("export", "unknown coordinate field %q in table %q", name, td.Name)
		}
		return f.Name, nil
	}
	if len(td.MGRSFields) == 0 {
		return "", core.InvalidQuery("export", "table %q has no coordinate field", td.Name)
	}
	return td.MGRSFields[0], nil
}

// parsePoints converts a cell holding one or more references separated by
// ';' or ','.
func parsePoints(v any) ([]point, []string) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' })
	var points []point
	var errs []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lat, lon, err := mgrs.ToLatLon(part)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		points = append(points, point{Lat: lat, Lon: lon})
	}
	return points, errs
}

// placemark names the placemark after nameField (or the hit id) and carries
// every non-coordinate field, the name field included, as ExtendedData.
func placemark(h search.Hit, td schema.TableDescriptor, nameField, coord string, points []point) *kml.CompoundElement {
	name := fmt.Sprint(h.ID)
	if v, ok := h.Source[nameField]; ok && v != nil {
		name = fmt.Sprint(v)
	}
	description := ""
	if len(td.ClassificationFields) > 0 {
		if v, ok := h.Source[td.ClassificationFields[0]]; ok && v != nil {
			description = fmt.Sprint(v)
		}
	}

	var attrs []attribute
	for _, f := range td.Fields {
		if f.Name == coord {
			continue
		}
		v, ok := h.Source[f.Name]
		if !ok || v == nil {
			continue
		}
		attrs = append(attrs, attribute{Name: f.Name, Value: fmt.Sprint(v)})
	}
	attrs = slices.DeleteFunc(attrs, func(a attribute) bool { return a.Value == "" })
	return placemarkElement(name, description, attrs, points)
}
