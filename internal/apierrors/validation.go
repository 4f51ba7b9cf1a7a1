package apierrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// MalformedEnvelope sends a 400 response describing why a request body is not a valid envelope
func MalformedEnvelope(c *gin.Context, err error) {
	if err == nil {
		return
	}

	ctx := c.Request.Context()
	logger.WarnWithError(ctx, "malformed envelope", err)
	respond(c, http.StatusBadRequest, CodeMalformedEnvelope, describe(err))
}

// describe builds a user-friendly message from validation and decoding errors
func describe(err error) string {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return buildValidationMessage(validationErrs)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("%s has the wrong type (got %s)", typeErr.Field, typeErr.Value)
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return "Invalid request format. Please check your JSON syntax."
	}

	return "Invalid envelope: " + err.Error()
}

// buildValidationMessage creates a user-friendly message from validation errors
func buildValidationMessage(validationErrs validator.ValidationErrors) string {
	if len(validationErrs) == 0 {
		return "Invalid request"
	}

	if len(validationErrs) == 1 {
		return getValidationMessage(validationErrs[0])
	}

	var messages []string
	for _, fieldErr := range validationErrs {
		messages = append(messages, getValidationMessage(fieldErr))
	}
	return "Validation failed: " + strings.Join(messages, "; ")
}

// getValidationMessage returns a human-readable message for a validation error
func getValidationMessage(fieldErr validator.FieldError) string {
	field := fieldErr.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fieldErr.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fieldErr.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fieldErr.Tag())
	}
}
