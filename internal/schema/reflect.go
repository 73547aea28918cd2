package schema

import "github.com/invopop/jsonschema"

// ProviderSchema reflects T into the closed, inlined JSON schema that model
// providers expect for structured output. Meta keys ($schema, $id) are dropped.
func ProviderSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	s := reflector.Reflect(v)
	s.Version = ""
	s.ID = ""
	return s
}
