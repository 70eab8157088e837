package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"github.com/docfoundry/docfoundry/pkg/core"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

// writeCoreError maps core sentinels to status codes; everything else is a
// 500 with the message passed through.
func writeCoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, core.ErrDocsNotFound) {
		writeError(w, http.StatusNotFound, "DOCS_NOT_FOUND", err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
}

// decode parses the JSON body into dst. Oversized bodies get 413, malformed
// ones 400; the return reports whether handling should continue.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE",
			"request body exceeds the 1 MiB limit")
		return false
	}
	writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
	return false
}
