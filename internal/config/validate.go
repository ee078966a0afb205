package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError is one invalid field with a hint for fixing it.
type ValidationError struct {
	Field      string `json:"field"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error in field '%s': %s", e.Field, e.Message)
}

// ValidationErrors collects every invalid field.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (e ValidationErrors) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	messages := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("multiple validation errors:\n  - %s", strings.Join(messages, "\n  - "))
}

// FileError reports a configuration file that could not be used.
type FileError struct {
	Kind       string
	Path       string
	Message    string
	Suggestion string
}

func (e *FileError) Error() string {
	return fmt.Sprintf("config file %s (%s): %s", e.Path, e.Kind, e.Message)
}

// NewConfigFileError creates a FileError.
func NewConfigFileError(kind, path, message, suggestion string) *FileError {
	return &FileError{Kind: kind, Path: path, Message: message, Suggestion: suggestion}
}

var validate = validator.New()

// Validate checks struct tags and the nested resource configuration.
func (c *Config) Validate() error {
	var errs []ValidationError

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("validating config: %w", err)
		}
		errs = appendFieldErrors(errs, "", fieldErrs)
	}

	if err := c.Resource.Validate(); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			errs = appendFieldErrors(errs, "Config.Resource.", fieldErrs)
		} else {
			errs = append(errs, ValidationError{
				Field:      "Config.Resource",
				Message:    err.Error(),
				Suggestion: "remove the resource section to use defaults",
			})
		}
	}

	if len(errs) > 0 {
		return ValidationErrors{Errors: errs}
	}
	return nil
}

// appendFieldErrors converts validator errors. A non-empty prefix replaces
// the root struct name of nested configs.
func appendFieldErrors(errs []ValidationError, prefix string, fieldErrs validator.ValidationErrors) []ValidationError {
	for _, fe := range fieldErrs {
		field := fe.Namespace()
		if prefix != "" {
			field = prefix + fe.Field()
		}
		errs = append(errs, ValidationError{
			Field:      field,
			Message:    fmt.Sprintf("failed '%s' check (value %v)", fe.Tag(), fe.Value()),
			Suggestion: suggestionFor(fe),
		})
	}
	return errs
}

func suggestionFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("use one of: %s", fe.Param())
	case "required":
		return "set a value"
	case "startswith":
		return fmt.Sprintf("value must start with %q", fe.Param())
	case "min", "max", "gt":
		return fmt.Sprintf("value must satisfy %s=%s", fe.Tag(), fe.Param())
	}
	return ""
}
