package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gosimple/slug"

	"github.com/rubiojr/scout/pkg/core"
	"github.com/rubiojr/scout/pkg/export"
	"github.com/rubiojr/scout/pkg/search"
	"github.com/rubiojr/scout/pkg/version"
)

// maxHeaderErrors caps the errors carried by X-Export-Metadata.
const maxHeaderErrors = 20

func (s *Server) HandleRoot(w http.ResponseWriter, r *http.Request) {
	response := RootResponse{
		Name:        "scout",
		Version:     version.APIVersion(),
		Description: "Schema-adaptive search over SQLite databases",
	}
	if info, err := s.engine.Schema(); err == nil {
		response.Database = info.Database
		response.TotalTables = info.TotalTables
		response.FTSAvailable = info.FTSAvailable
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.engine.Health(r.Context())
	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) HandleSchema(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.Schema()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) HandleSwitchDatabase(w http.ResponseWriter, r *http.Request) {
	var req SwitchDatabaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.DBPath) == "" {
		s.writeError(w, http.StatusBadRequest, "Missing dbPath", "Field 'dbPath' is required")
		return
	}

	status, err := s.engine.Switch(r.Context(), req.DBPath)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SwitchDatabaseResponse{
		Success: true,
		Message: fmt.Sprintf("Switched to %s", status.Path),
		DBPath:  status.Path,
	})
}

func (s *Server) HandleListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.engine.Tables()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	summaries := make([]TableSummary, len(tables))
	for i, t := range tables {
		summaries[i] = TableSummary{
			Name:                  t.Name,
			RowCount:              t.RowCount,
			FieldCount:            len(t.Fields),
			SearchableFields:      t.SearchableFields,
			MGRSFields:            t.MGRSFields,
			IDFields:              t.IDFields,
			HighestClassification: t.HighestClassification,
			Indexed:               t.Indexed,
		}
	}
	s.writeJSON(w, http.StatusOK, ListTablesResponse{Tables: summaries, Count: len(summaries)})
}

func (s *Server) HandleDescribeTable(w http.ResponseWriter, r *http.Request) {
	td, err := s.engine.Describe(chi.URLParam(r, "table"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, td)
}

func (s *Server) HandleTableFields(w http.ResponseWriter, r *http.Request) {
	td, err := s.engine.Describe(chi.URLParam(r, "table"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FieldsResponse{Table: td.Name, Fields: td.Fields, Count: len(td.Fields)})
}

func (s *Server) HandleRecord(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	row, err := s.engine.Record(r.Context(), table, chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if _, ok := row["table"]; !ok {
		row["table"] = table
	}
	s.writeJSON(w, http.StatusOK, row)
}

func (s *Server) HandleEnsureIndex(w http.ResponseWriter, r *http.Request) {
	var req EnsureIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	table := chi.URLParam(r, "table")
	info, err := s.engine.EnsureIndex(r.Context(), table, req.Fields)
	if core.KindOf(err) == core.KindIndexUnavailable {
		// Searches keep working without the index.
		s.writeJSON(w, http.StatusConflict, EnsureIndexResponse{
			Success: false,
			Table:   table,
			Error:   "Index unavailable",
			Message: core.MessageOf(err),
		})
		return
	}
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, EnsureIndexResponse{
		Success:   true,
		Table:     info.Table,
		Index:     info.Name,
		Fields:    info.Fields,
		Documents: info.Documents,
		Recreated: info.Recreated,
		TookMS:    info.Took.Milliseconds(),
	})
}

func (s *Server) HandleSearchGet(w http.ResponseWriter, r *http.Request) {
	req, err := search.ParseParams(r.URL.Query())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.runSearch(w, r, req, search.FormatSimple)
}

func (s *Server) HandleSearchPost(w http.ResponseWriter, r *http.Request) {
	req, err := search.DecodeRequest(r.Body)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if f := r.URL.Query().Get("format"); f != "" {
		req.Format = f
	}
	s.runSearch(w, r, req, search.FormatElastic)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, req *search.Request, format string) {
	req.Table = chi.URLParam(r, "table")
	res, err := s.engine.Search(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, search.Envelope(res, req.Format, format))
}

func (s *Server) HandleExport(w http.ResponseWriter, r *http.Request) {
	format := chi.URLParam(r, "format")
	if format != export.FormatKML && format != export.FormatKMZ {
		s.writeError(w, http.StatusNotFound, "Not found", fmt.Sprintf("Unknown export format '%s'", format))
		return
	}

	q := r.URL.Query()
	req := &export.Request{
		Table:           chi.URLParam(r, "table"),
		Query:           q.Get("q"),
		CoordinateField: q.Get("mgrs_field"),
		Format:          format,
	}
	if l := q.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid query", fmt.Sprintf("limit must be an integer, got %q", l))
			return
		}
		req.Limit = limit
	}
	if f := q.Get("filters"); f != "" {
		var filters map[string]any
		dec := json.NewDecoder(strings.NewReader(f))
		dec.UseNumber()
		if err := dec.Decode(&filters); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid query", fmt.Sprintf("filters must be a JSON object: %v", err))
			return
		}
		req.Filters = filters
	}

	doc, err := s.engine.Export(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	meta, err := json.Marshal(doc.Metadata.Summary(maxHeaderErrors))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	filename := slug.Make(doc.Metadata.Table)
	if filename == "" {
		filename = "export"
	}
	w.Header().Set("Content-Type", doc.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+"."+doc.Format))
	w.Header().Set("X-Export-Metadata", string(meta))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Data); err != nil {
		logger.Warnf("failed to write export: %v", err)
	}
}
