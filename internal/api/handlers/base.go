// Package handlers contains shared helpers for the operator API's HTTP handlers.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/bargom/hookrelay/internal/api/types"
)

// Base provides the JSON encode/decode/validate helpers shared by every
// resource handler in the operator API.
type Base struct {
	Validate *validator.Validate
}

// NewBase constructs a Base with a fresh validator instance.
func NewBase() Base {
	return Base{Validate: validator.New()}
}

// RespondJSON writes a JSON response with the given status code.
func (b Base) RespondJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// RespondError writes a JSON error response with the given status code.
func (b Base) RespondError(w http.ResponseWriter, code int, message string) {
	b.RespondJSON(w, code, types.ErrorResponse{Error: message})
}

// RespondValidationError writes a 400 with per-field validation detail.
func (b Base) RespondValidationError(w http.ResponseWriter, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		details := make(map[string]string)
		for _, e := range validationErrs {
			details[e.Field()] = formatValidationError(e)
		}
		b.RespondJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: "validation failed", Details: details})
		return
	}
	b.RespondError(w, http.StatusBadRequest, "invalid input")
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "min":
		return "must be at least " + e.Param() + " characters"
	case "max":
		return "must be at most " + e.Param() + " characters"
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}

// DecodeAndValidate decodes a JSON body into v and runs struct validation.
func (b Base) DecodeAndValidate(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return b.Validate.Struct(v)
}

// PaginationParams extracts limit/offset query parameters, clamping limit
// to types.DefaultMaxLimit.
func PaginationParams(r *http.Request) (limit, offset int) {
	limit = types.DefaultLimit
	offset = 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			if parsed > types.DefaultMaxLimit {
				parsed = types.DefaultMaxLimit
			}
			limit = parsed
		}
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return limit, offset
}
