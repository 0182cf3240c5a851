package config

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaVersion is the version stamped into the generated JSON schema.
const SchemaVersion = "1.0.0"

// Schema returns the JSON schema of the configuration file, indented.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	schema := reflector.Reflect(&Config{})
	schema.Title = "fsgate configuration"
	schema.Description = "Configuration schema for the fsgate HTTP filesystem gateway"
	schema.Version = SchemaVersion

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}
