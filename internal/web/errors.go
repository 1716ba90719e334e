package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is:
//   - Logged with full technical details and the request ID (server-side)
//   - Returned to clients as a JSON user message with an action suggestion
//
// Handlers call respondError(w, r, err, statusFor(err)); the message comes
// from core.MapError so the HTTP and CLI surfaces share one code table.

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/JonMunkholm/sitecatalog/internal/core"
	"github.com/JonMunkholm/sitecatalog/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

var (
	errMissingSiteID   = errors.New("site_id is required")
	errInvalidSiteID   = errors.New("invalid site_id")
	errNoManifest      = errors.New("no file provided")
	errInvalidForm     = errors.New("invalid form")
	errBodyTooLarge    = errors.New("request body too large")
	errRateLimited     = errors.New("rate limit exceeded")
	errUnauthenticated = errors.New("missing bearer token")
)

// respondError logs err with request context and writes the mapped user
// message as JSON.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request rejected", attrs...)
	}

	respondErrorJSON(w, userMsg, statusCode)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// statusFor maps an error returned by the core or a handler to an HTTP status.
func statusFor(err error) int {
	var (
		ve  *core.ValidationError
		zre *core.ZeroRowsError
		mbe *http.MaxBytesError
	)

	switch {
	case errors.As(err, &ve), errors.As(err, &zre),
		errors.Is(err, errMissingSiteID), errors.Is(err, errInvalidSiteID),
		errors.Is(err, errNoManifest), errors.Is(err, errInvalidForm):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrSiteNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBodyTooLarge), errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyUploads), errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
