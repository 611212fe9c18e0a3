package webserver

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

type errorBody struct {
	Error string `json:"error"`
}

// writeJSONResponse writes a JSON payload with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse sends an error JSON response.
func writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, statusCode, errorBody{Error: message})
}
