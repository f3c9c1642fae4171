package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/templui/picsellart/internal/ctxkeys"
	"github.com/templui/picsellart/internal/service"
)

const maxJSONBody = 64 << 10

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// statusFor maps a service error kind to its HTTP status.
func statusFor(e *service.Error) int {
	if e.Reason == service.ReasonUnauthenticated {
		return http.StatusUnauthorized
	}
	switch e.Kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindAuthorization:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError answers with the caller-facing reason of err. Anything that is
// not a service error is logged and reported as an internal error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := service.AsError(err); ok {
		status := statusFor(e)
		if status >= http.StatusInternalServerError {
			slog.Error("upstream failure", "error", err, "path", r.URL.Path, "request_id", ctxkeys.RequestID(r.Context()))
		}
		writeJSON(w, status, errorResponse{Error: string(e.Reason), Message: e.Message})
		return
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "TooLarge", Message: "request body too large"})
		return
	}

	slog.Error("request failed", "error", err, "path", r.URL.Path, "request_id", ctxkeys.RequestID(r.Context()))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal", Message: "something went wrong"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return service.ValidationError("invalid JSON body: " + err.Error())
	}
	return nil
}
