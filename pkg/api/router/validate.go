package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/valyala/fasthttp"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult collects field errors for one payload.
type ValidationResult struct {
	Errors []ValidationError
}

func (vr *ValidationResult) AddError(field, message string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Message: message})
}

// Require records an error when value is blank.
func (vr *ValidationResult) Require(field, value string) {
	if strings.TrimSpace(value) == "" {
		vr.AddError(field, field+" is required")
	}
}

// Err returns nil when no errors were recorded.
func (vr *ValidationResult) Err() error {
	if len(vr.Errors) == 0 {
		return nil
	}
	return vr
}

func (vr *ValidationResult) Error() string {
	msg := "validation failed:"
	for _, err := range vr.Errors {
		msg += fmt.Sprintf(" %s;", err.Error())
	}
	return msg
}

// WriteValidationError writes a 400 carrying the offending fields.
func WriteValidationError(ctx *fasthttp.RequestCtx, err error) {
	var fields []ValidationError
	var ve *ValidationError
	var vr *ValidationResult
	switch {
	case errors.As(err, &ve):
		fields = []ValidationError{*ve}
	case errors.As(err, &vr):
		fields = vr.Errors
	}
	_ = WriteJSONStatus(ctx, fasthttp.StatusBadRequest, struct {
		Error  string            `json:"error"`
		Fields []ValidationError `json:"fields,omitempty"`
	}{Error: err.Error(), Fields: fields})
}
