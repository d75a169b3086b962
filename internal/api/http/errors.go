package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/coursestats/internal/engine"
	"github.com/mind-engage/coursestats/internal/stats"
)

type errorBody struct {
	Error  string                   `json:"error"`
	Row    int                      `json:"row,omitempty"`
	Field  string                   `json:"field,omitempty"`
	Reason stats.Reason             `json:"reason,omitempty"`
	Errors []*stats.ValidationError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto status codes.
func writeError(w http.ResponseWriter, err error) {
	var (
		authErr  *stats.AuthorizationError
		batchErr *stats.BatchRejectedError
		valErr   *stats.ValidationError
		storeErr *stats.StoreError
		fieldErr validator.ValidationErrors
	)
	switch {
	case errors.As(err, &authErr):
		writeJSON(w, http.StatusForbidden, errorBody{Error: authErr.Error()})
	case errors.As(err, &batchErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "batch rejected", Errors: batchErr.Errors})
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error: valErr.Message, Row: valErr.Row, Field: valErr.Field, Reason: valErr.Reason,
		})
	case errors.As(err, &fieldErr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fieldErr.Error()})
	case errors.Is(err, engine.ErrUnreadableSheet):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, stats.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.As(err, &storeErr):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: storeErr.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}
