// Package api exposes the scout engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/rubiojr/scout/pkg/core"
	"github.com/rubiojr/scout/pkg/engine"
	"github.com/rubiojr/scout/pkg/log"
	"github.com/rubiojr/scout/pkg/storage"
)

var logger = log.ForService("api")

type Server struct {
	engine   *engine.Engine
	upgrader websocket.Upgrader
}

func NewServer(e *engine.Engine) *Server {
	return &Server{
		engine: e,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warnf("Error encoding JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, error, message string) {
	response := ErrorResponse{
		Error:   error,
		Message: message,
	}
	s.writeJSON(w, status, response)
}

// writeEngineError maps an engine failure to its HTTP status.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrNoDatabase) {
		s.writeError(w, http.StatusBadRequest, "No database loaded", "Switch to a database first via POST /switch-database")
		return
	}
	switch core.KindOf(err) {
	case core.KindNotFound:
		s.writeError(w, http.StatusNotFound, "Not found", core.MessageOf(err))
	case core.KindInvalidQuery:
		s.writeError(w, http.StatusBadRequest, "Invalid query", core.MessageOf(err))
	case core.KindIndexUnavailable:
		s.writeError(w, http.StatusConflict, "Index unavailable", core.MessageOf(err))
	default:
		logger.Errorf("%s %s [%s]: %v", r.Method, r.URL.Path, middleware.GetReqID(r.Context()), err)
		s.writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
	}
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Expose-Headers", "X-Export-Metadata, X-Request-Id")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// jsonRecoverer turns handler panics into a JSON 500.
func jsonRecoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				logger.Errorf("panic serving %s %s: %v\n%s", r.Method, r.URL.Path, rvr, debug.Stack())
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(ErrorResponse{
					Error:   "Internal error",
					Message: "internal error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
