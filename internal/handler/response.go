package handler

// RESPONSE HELPERS:
// The AJAX endpoints answer JSON. Every error has the same shape:
//   {"error": "not_found", "message": "product not found with id 42"}
// so the browser script can handle failures uniformly.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/sakif/pur-beurre/internal/apperror"
)

// maxBodyBytes bounds form and JSON bodies; the largest legitimate body is
// a sign-up form.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by the JSON endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// writeJSON sends a JSON response with the given status code.
// Headers and status must be written before the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// headers are already sent, only logging is left
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps a domain error to its HTTP status and error type.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// errors.As walks the wrap chain, so a service error such as
// fmt.Errorf("saving favorite: %w", apperror.NotFound(...)) still maps to 404.
// Errors that are not *apperror.AppError become a generic 500: their text may
// contain SQL or file paths and is only logged.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, errorType := errorStatus(err)
		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
		})
		return
	}

	logger.Error("request failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// requestParams reads the parameters of a POST request, sent either as a
// form (what the site's scripts do) or as a JSON object.
func requestParams(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return nil, apperror.ValidationFailed("body", "invalid JSON body")
		}
		values := url.Values{}
		for k, v := range body {
			switch v := v.(type) {
			case nil:
			case string:
				values.Set(k, v)
			default:
				values.Set(k, fmt.Sprint(v))
			}
		}
		return values, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, apperror.ValidationFailed("body", "invalid form body")
	}
	return r.PostForm, nil
}

// safeNext returns next when it is a local path, else "/". It keeps the
// sign-in redirect from sending users to another site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Host != "" || u.Scheme != "" {
		return "/"
	}
	return next
}
