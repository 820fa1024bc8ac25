package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rubiojr/scout/pkg/metrics"
)

// Handler returns the router serving every endpoint.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware())
	r.Use(CorsMiddleware)

	// Hijacked connections and the Prometheus handler stay out of gzip.
	r.Get("/events", s.HandleEvents)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) })

		r.Get("/", s.HandleRoot)
		r.Get("/health", s.HandleHealth)
		r.Get("/stats", s.HandleStats)
		r.Get("/schema", s.HandleSchema)
		r.Post("/switch-database", s.HandleSwitchDatabase)

		r.Get("/tables", s.HandleListTables)
		r.Get("/tables/{table}", s.HandleDescribeTable)
		r.Get("/tables/{table}/fields", s.HandleTableFields)
		r.Get("/tables/{table}/records/{id}", s.HandleRecord)
		r.Post("/tables/{table}/fts", s.HandleEnsureIndex)

		r.Get("/search/{table}", s.HandleSearchGet)
		r.Post("/search/{table}", s.HandleSearchPost)

		r.Get("/export/{format}/{table}", s.HandleExport)
	})
	return r
}
