package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kubilitics/couchdb-mcp/internal/value"
)

// validate is the singleton validator instance
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON argument names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ArgumentError reports tool arguments that failed to decode or validate.
type ArgumentError struct {
	Tool    string
	Message string
	Fields  map[string]string
}

func (e *ArgumentError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Message)
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	msgs := make([]string, len(names))
	for i, name := range names {
		msgs[i] = e.Fields[name]
	}
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(msgs, "; "))
}

// IsArgumentError checks if an error is an ArgumentError
func IsArgumentError(err error) bool {
	var argErr *ArgumentError
	return errors.As(err, &argErr)
}

// parseArguments decodes the raw arguments object. Absent arguments are an
// empty object. On failure the returned object is nil.
func parseArguments(tool string, raw json.RawMessage) (*value.Object, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return value.NewObject(), nil
	}
	v, err := value.Parse(raw)
	if err != nil {
		return nil, &ArgumentError{Tool: tool, Message: err.Error()}
	}
	obj, ok := v.(*value.Object)
	if !ok {
		return nil, &ArgumentError{Tool: tool, Message: "arguments must be a JSON object"}
	}
	return obj, nil
}

// bindArgs decodes args into dst and validates its struct tags.
func bindArgs(tool string, args *value.Object, dst interface{}) error {
	data, err := json.Marshal(args)
	if err != nil {
		return &ArgumentError{Tool: tool, Message: err.Error()}
	}
	if err := json.Unmarshal(data, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return &ArgumentError{Tool: tool, Fields: map[string]string{
				typeErr.Field: fmt.Sprintf("%s must be of type %s", typeErr.Field, typeErr.Type),
			}}
		}
		return &ArgumentError{Tool: tool, Message: err.Error()}
	}

	if err := validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return newArgumentError(tool, validationErrors)
		}
		return &ArgumentError{Tool: tool, Message: err.Error()}
	}
	return nil
}

func newArgumentError(tool string, errs validator.ValidationErrors) *ArgumentError {
	fields := make(map[string]string)
	for _, err := range errs {
		field := err.Field()
		tag := err.Tag()

		switch tag {
		case "required":
			fields[field] = fmt.Sprintf("%s is required", field)
		case "gte":
			fields[field] = fmt.Sprintf("%s must be greater than or equal to %s", field, err.Param())
		case "max":
			fields[field] = fmt.Sprintf("%s must be at most %s", field, err.Param())
		case "oneof":
			fields[field] = fmt.Sprintf("%s must be one of: %s", field, err.Param())
		default:
			fields[field] = fmt.Sprintf("%s validation failed on '%s' tag", field, tag)
		}
	}
	return &ArgumentError{Tool: tool, Message: "validation failed", Fields: fields}
}

// objectArg returns a required object-valued argument without re-encoding it,
// so document key order survives.
func objectArg(tool string, args *value.Object, key string) (*value.Object, error) {
	v, ok := args.Get(key)
	if !ok {
		return nil, &ArgumentError{Tool: tool, Fields: map[string]string{key: key + " is required"}}
	}
	obj, ok := v.(*value.Object)
	if !ok {
		return nil, &ArgumentError{Tool: tool, Fields: map[string]string{key: key + " must be an object"}}
	}
	return obj, nil
}
