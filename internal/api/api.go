// Package api serves recorded usage and live tracking state as JSON.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// writeJSON encodes data before touching the response so an encoding failure
// can still become a 500. Responses reflect live state and are never cached.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		writeRaw(w, http.StatusInternalServerError, []byte(`{"error":"Internal Server Error","message":"Failed to encode response","code":500}`))
		return
	}
	writeRaw(w, statusCode, append(body, '\n'))
}

func writeRaw(w http.ResponseWriter, statusCode int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// NewRouter returns a router serving the usage and status endpoints.
// status may be nil when no tracking runs in this process.
func NewRouter(usageHandler *UsageHandler, status *StatusHandler, logger zerolog.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(LoggingMiddleware(logger.With().Str("component", "api").Logger()))

	router.HandleFunc("/api/usage", usageHandler.List).Methods("GET")
	router.HandleFunc("/api/usage/{id}", usageHandler.Get).Methods("GET")
	if status != nil {
		router.HandleFunc("/api/status", status.Get).Methods("GET")
	}

	return router
}
