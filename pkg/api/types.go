package api

import (
	"github.com/rubiojr/scout/pkg/schema"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type RootResponse struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	Database     string `json:"database"`
	TotalTables  int    `json:"total_tables"`
	FTSAvailable bool   `json:"fts_available"`
	Description  string `json:"description"`
}

type TableSummary struct {
	Name                  string   `json:"name"`
	RowCount              int64    `json:"row_count"`
	FieldCount            int      `json:"field_count"`
	SearchableFields      []string `json:"searchable_fields"`
	MGRSFields            []string `json:"mgrs_fields"`
	IDFields              []string `json:"id_fields"`
	HighestClassification string   `json:"highest_classification"`
	Indexed               bool     `json:"indexed"`
}

type ListTablesResponse struct {
	Tables []TableSummary `json:"tables"`
	Count  int            `json:"count"`
}

type FieldsResponse struct {
	Table  string                   `json:"table"`
	Fields []schema.FieldDescriptor `json:"fields"`
	Count  int                      `json:"count"`
}

type EnsureIndexRequest struct {
	Fields []string `json:"fields"`
}

type EnsureIndexResponse struct {
	Success   bool     `json:"success"`
	Table     string   `json:"table"`
	Index     string   `json:"index,omitempty"`
	Fields    []string `json:"fields,omitempty"`
	Documents int64    `json:"documents"`
	Recreated bool     `json:"recreated"`
	TookMS    int64    `json:"took_ms"`
	Error     string   `json:"error,omitempty"`
	Message   string   `json:"message,omitempty"`
}

type SwitchDatabaseRequest struct {
	DBPath string `json:"dbPath"`
}

type SwitchDatabaseResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	DBPath  string `json:"dbPath"`
}
