// Package bind decodes and validates JSON request bodies for local API routes.
//
//	r.With(bind.MaxBodySize(bind.DefaultMaxBodySize)).Post("/api/notifications/telegram", h)
//
//	var req NotifyRequest
//	if !bind.JSON(r, &req) {
//	    return // error already set on the wrapper
//	}
//
// Validation uses go-playground/validator struct tags. Field names in errors
// follow the json tag.
package bind

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/abuimran/farmgate/wrapper"
	"github.com/go-playground/validator/v10"
)

// DefaultMaxBodySize caps request bodies on local API routes.
const DefaultMaxBodySize int64 = 64 << 10

var (
	validate   *validator.Validate
	validateMu sync.RWMutex
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]; name != "" && name != "-" {
			return name
		}
		return fld.Name
	})
}

// MaxBodySize limits how many bytes JSON will read from the body. A larger
// body fails decoding with ErrPayloadTooLarge.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// JSON decodes the body into dest and validates it. It reports whether both
// succeeded; on failure the error is set on the wrapper, if present.
func JSON(r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			wrapper.SetError(r, wrapper.ErrPayloadTooLarge.With("Request body too large"))
		} else {
			wrapper.SetError(r, wrapper.ErrBadRequest.With("Invalid JSON request body"))
		}
		return false
	}

	validateMu.RLock()
	err := validate.Struct(dest)
	validateMu.RUnlock()
	if err != nil {
		wrapper.SetError(r, wrapper.NewValidationError(translateErrors(err)))
		return false
	}
	return true
}

// RegisterValidation adds a custom tag. Call it at startup.
func RegisterValidation(tag string, fn validator.Func) error {
	validateMu.Lock()
	defer validateMu.Unlock()
	return validate.RegisterValidation(tag, fn)
}

func translateErrors(err error) []wrapper.FieldError {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return []wrapper.FieldError{{Code: "validation", Message: err.Error()}}
	}
	result := make([]wrapper.FieldError, len(errs))
	for i, e := range errs {
		result[i] = wrapper.FieldError{
			Param:   e.Field(),
			Code:    e.Tag(),
			Message: message(e.Tag(), e.Param()),
		}
	}
	return result
}

func message(tag, param string) string {
	switch tag {
	case "required":
		return "required"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "oneof":
		return "must be one of: " + param
	case "url":
		return "must be a valid URL"
	}
	if param != "" {
		return tag + "=" + param
	}
	return tag
}
