package schema

import (
	"errors"
	"fmt"
	"math"
	"net/mail"
	"strings"
)

// ErrSchemaValidation is matched by every ValidationError.
var ErrSchemaValidation = errors.New("schema validation failed")

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports caller input rejected before any external call.
type ValidationError struct {
	Subject string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ErrSchemaValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Field == "" {
			parts = append(parts, f.Message)
			continue
		}
		parts = append(parts, f.Field+": "+f.Message)
	}
	subject := e.Subject
	if subject == "" {
		subject = "input"
	}
	return fmt.Sprintf("%s: invalid %s: %s", ErrSchemaValidation, subject, strings.Join(parts, "; "))
}

// Unwrap lets errors.Is match ErrSchemaValidation.
func (e *ValidationError) Unwrap() error { return ErrSchemaValidation }

// Checker accumulates field errors for hand-written validation.
type Checker struct {
	fields []FieldError
}

// Add records a field error.
func (c *Checker) Add(field, message string) {
	c.fields = append(c.fields, FieldError{Field: field, Message: message})
}

// Required rejects empty or whitespace-only text.
func (c *Checker) Required(field, value, message string) {
	if strings.TrimSpace(value) == "" {
		c.Add(field, message)
	}
}

// NonNegative rejects negative, NaN and infinite numbers.
func (c *Checker) NonNegative(field string, value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		c.Add(field, "Must be a finite number.")
		return
	}
	if value < 0 {
		c.Add(field, "Must be a positive number.")
	}
}

// Range rejects numbers outside [min, max].
func (c *Checker) Range(field string, value, min, max float64) {
	if math.IsNaN(value) || value < min || value > max {
		c.Add(field, fmt.Sprintf("Must be between %g and %g.", min, max))
	}
}

// OneOf rejects values outside the allowed set.
func (c *Checker) OneOf(field, value string, allowed ...string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	c.Add(field, fmt.Sprintf("Must be one of %s.", strings.Join(allowed, ", ")))
}

// OptionalEmail accepts an empty value or a single bare address.
func (c *Checker) OptionalEmail(field, value string) {
	if value == "" {
		return
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		c.Add(field, "Must be a valid email address.")
	}
}

// Err returns a ValidationError when any field failed, nil otherwise.
func (c *Checker) Err(subject string) error {
	if len(c.fields) == 0 {
		return nil
	}
	fields := make([]FieldError, len(c.fields))
	copy(fields, c.fields)
	return &ValidationError{Subject: subject, Fields: fields}
}
