package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jensholdgaard/pregao/internal/apperr"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind      string `json:"kind"`
	Resource  string `json:"resource,omitempty"`
	ID        string `json:"id,omitempty"`
	Field     string `json:"field,omitempty"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// badRequest marks input the API could not parse.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind to its HTTP status. Validation answers 417
// Expectation Failed.
func statusFor(err error) int {
	var br *badRequest
	if errors.As(err, &br) {
		return http.StatusBadRequest
	}
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindNoContent:
		return http.StatusNoContent
	case apperr.KindValidation:
		return http.StatusExpectationFailed
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusNoContent {
		w.WriteHeader(code)
		return
	}

	detail := errorDetail{Message: err.Error()}
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
		detail = errorDetail{
			Kind:      string(ae.Kind),
			Resource:  ae.Resource,
			ID:        ae.ID,
			Field:     ae.Field,
			Message:   ae.Error(),
			Retryable: ae.Retryable,
		}
	case code == http.StatusBadRequest:
		detail.Kind = "bad_request"
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("error", err),
		)
		detail = errorDetail{Kind: "internal", Message: "internal error"}
	}
	writeJSON(w, code, errorBody{Error: detail})
}

// decode reads a JSON body into dst. Anything unreadable is a bad request.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &badRequest{msg: "request body is empty"}
		}
		return &badRequest{msg: "invalid JSON: " + err.Error()}
	}
	return nil
}

// idParam parses a positive integer path parameter.
func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &badRequest{msg: "invalid " + name + ": " + strconv.Quote(raw)}
	}
	return id, nil
}
