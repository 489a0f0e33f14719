package config

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
)

// durationPattern accepts Go duration strings such as "250ms" or "1m30s".
const durationPattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

// GenerateSchema generates the JSON Schema for testwatch.yml.
// It reflects the Config struct from types.go.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		// Unknown keys are typos.
		AllowAdditionalProperties: false,
		// Expand struct references instead of using $ref for a self-contained schema.
		ExpandedStruct: true,
		DoNotReference: true,
		// Use YAML field names for property names
		FieldNameTag: "yaml",
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(time.Duration(0)) {
				return &jsonschema.Schema{Type: "string", Pattern: durationPattern}
			}
			return nil
		},
	}

	schema := r.Reflect(&Config{})
	schema.Title = "testwatch configuration"
	schema.Description = "Schema for testwatch.yml and testwatch.toml."

	return json.MarshalIndent(schema, "", "  ")
}
