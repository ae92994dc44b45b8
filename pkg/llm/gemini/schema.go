package gemini

import "google.golang.org/genai"

// toGenaiSchema converts a JSON-Schema-shaped map (as produced by
// toolregistry.ParamsSchema or hand-written tool parameter maps) into the
// genai SDK's own Schema type. Only the subset of JSON Schema the corpus's
// tools actually use is handled; unrecognized types fall back to
// TypeString so a tool is never silently dropped from the declaration.
func toGenaiSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}

	s := &genai.Schema{}
	if desc, ok := m["description"].(string); ok {
		s.Description = desc
	}

	switch t, _ := m["type"].(string); t {
	case "object":
		s.Type = genai.TypeObject
		if props, ok := m["properties"].(map[string]any); ok {
			s.Properties = make(map[string]*genai.Schema, len(props))
			for name, raw := range props {
				if pm, ok := raw.(map[string]any); ok {
					s.Properties[name] = toGenaiSchema(pm)
				}
			}
		}
		s.Required = stringSlice(m["required"])
	case "array":
		s.Type = genai.TypeArray
		if items, ok := m["items"].(map[string]any); ok {
			s.Items = toGenaiSchema(items)
		}
	case "string":
		s.Type = genai.TypeString
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	default:
		s.Type = genai.TypeString
	}
	return s
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
