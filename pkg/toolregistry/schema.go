package toolregistry

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// ParamsSchema reflects a Go struct into a provider-ready JSON Schema
// object for a tool's parameters, the way geppetto and strongdm-attractor
// both derive tool schemas from typed request structs rather than
// hand-writing map literals for every built-in tool.
func ParamsSchema(v any) map[string]any {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(v)

	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}
