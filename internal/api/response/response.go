package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kiranshivaraju/analyzr/internal/apperror"
)

type envelope struct {
	Data any `json:"data"`
}

type collectionEnvelope struct {
	Data any        `json:"data"`
	Meta CursorMeta `json:"meta"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// CursorMeta describes one page of a cursor-paginated listing.
type CursorMeta struct {
	Limit      int    `json:"limit"`
	NextCursor string `json:"next_cursor,omitempty"`
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

func Accepted(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusAccepted, envelope{Data: data})
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func Collection(w http.ResponseWriter, data any, meta CursorMeta) {
	writeJSON(w, http.StatusOK, collectionEnvelope{Data: data, Meta: meta})
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// FromError writes err using its apperror kind. Internal causes are never exposed.
func FromError(w http.ResponseWriter, err error) {
	kind := apperror.KindOf(err)

	var details any
	var e *apperror.Error
	if kind != apperror.KindInternal && errors.As(err, &e) {
		details = e.Details
	}

	Error(w, apperror.HTTPStatus(kind), apperror.Code(kind), apperror.PublicMessage(err), details)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
