// internal/app/system/payload/payload.go

// Package payload decodes and validates JSON request bodies. Handlers
// declare payload structs with `validate` tags and get back a field→message
// map suitable for the standard error response.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Request bodies larger than this are rejected outright.
const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// objectid: a 24-char hex Mongo ObjectID. Empty strings pass so the
	// tag composes with omitempty/required.
	_ = v.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		_, err := primitive.ObjectIDFromHex(s)
		return err == nil
	})

	// dateonly: a 2006-01-02 calendar date. Parsed for real so
	// out-of-range months and days are rejected, not just bad shapes.
	_ = v.RegisterValidation("dateonly", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		_, err := time.Parse("2006-01-02", s)
		return err == nil
	})

	// Report json tag names instead of Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ErrMalformed means the body was not valid JSON (or too large).
var ErrMalformed = errors.New("malformed request body")

// Decode reads the JSON body into dst and validates it. On validation
// failure it returns a non-empty field→message map with a nil error; on a
// body that cannot be parsed it returns ErrMalformed.
func Decode(r *http.Request, dst any) (map[string]string, error) {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = message(fe)
		}
		return fields, nil
	}
	return nil, nil
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "objectid":
		return "must be a valid ID"
	case "dateonly":
		return "must be a date in YYYY-MM-DD form"
	case "min":
		return "too short (minimum " + fe.Param() + ")"
	case "max":
		return "too long (maximum " + fe.Param() + ")"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "email":
		return "must be a valid email address"
	default:
		return "invalid value"
	}
}
