package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Contract couples a JSON schema derived from T with a strict decoder for T.
type Contract[T any] struct {
	name     string
	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
}

// ContractOption tightens the derived schema.
type ContractOption func(*jsonschema.Schema) error

// WithEnum restricts a top-level string property to the given values.
func WithEnum(field string, values ...string) ContractOption {
	return func(s *jsonschema.Schema) error {
		prop, err := property(s, field)
		if err != nil {
			return err
		}
		prop.Enum = make([]any, 0, len(values))
		for _, v := range values {
			prop.Enum = append(prop.Enum, v)
		}
		return nil
	}
}

// WithMinLength requires a top-level string property to hold at least n characters.
func WithMinLength(field string, n int) ContractOption {
	return func(s *jsonschema.Schema) error {
		prop, err := property(s, field)
		if err != nil {
			return err
		}
		prop.MinLength = &n
		return nil
	}
}

// WithPattern requires a top-level string property to match an ECMA-262 pattern.
func WithPattern(field, pattern string) ContractOption {
	return func(s *jsonschema.Schema) error {
		prop, err := property(s, field)
		if err != nil {
			return err
		}
		prop.Pattern = pattern
		return nil
	}
}

// AllowExtraFields accepts (and drops) properties the contract does not name.
func AllowExtraFields() ContractOption {
	return func(s *jsonschema.Schema) error {
		s.AdditionalProperties = nil
		return nil
	}
}

func property(s *jsonschema.Schema, field string) (*jsonschema.Schema, error) {
	prop, ok := s.Properties[field]
	if !ok || prop == nil {
		return nil, fmt.Errorf("schema: unknown property %q", field)
	}
	return prop, nil
}

// NewContract derives the schema of T and applies opts.
func NewContract[T any](name string, opts ...ContractOption) (*Contract[T], error) {
	if name == "" {
		return nil, errors.New("schema: empty contract name")
	}
	s, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("schema: derive %s: %w", name, err)
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("schema: %s: %w", name, err)
		}
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("schema: resolve %s: %w", name, err)
	}
	return &Contract[T]{name: name, schema: s, resolved: resolved}, nil
}

// MustContract is NewContract for package-level contracts.
func MustContract[T any](name string, opts ...ContractOption) *Contract[T] {
	c, err := NewContract[T](name, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Name returns the contract name.
func (c *Contract[T]) Name() string { return c.name }

// Schema returns the JSON schema the contract validates against.
func (c *Contract[T]) Schema() *jsonschema.Schema { return c.schema }

// Decode validates data against the schema and unmarshals it into T.
// Every failure is a *ValidationError; the zero T is returned with it.
func (c *Contract[T]) Decode(data []byte) (T, error) {
	var zero T
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return zero, c.invalid("", "empty document")
	}
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return zero, c.invalid("", "malformed JSON: "+err.Error())
	}
	if _, ok := instance.(map[string]any); !ok {
		return zero, c.invalid("", "expected a JSON object")
	}
	if err := c.resolved.Validate(instance); err != nil {
		return zero, c.invalid("", err.Error())
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, c.invalid("", err.Error())
	}
	return out, nil
}

// Check validates an already typed value by round-tripping it through the schema.
func (c *Contract[T]) Check(v T) (T, error) {
	data, err := json.Marshal(v)
	if err != nil {
		var zero T
		return zero, c.invalid("", err.Error())
	}
	return c.Decode(data)
}

func (c *Contract[T]) invalid(field, message string) error {
	return &ValidationError{Subject: c.name, Fields: []FieldError{{Field: field, Message: message}}}
}
