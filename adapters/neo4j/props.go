package neo4j

import (
	"encoding/json"
	"strings"
)

// Neo4j node properties are limited to primitives and arrays of primitives.
// Structured values (creator lists, metadata maps) round-trip through JSON
// text: encodeProps marshals them on write, decodeProps unmarshals them on
// read.

func encodeProps(props map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(props))
	for k, v := range props {
		switch val := v.(type) {
		case map[string]any:
			b, err := json.Marshal(val)
			if err != nil {
				return nil, err
			}
			out[k] = string(b)
		case []any:
			if primitiveList(val) {
				out[k] = val
				continue
			}
			b, err := json.Marshal(val)
			if err != nil {
				return nil, err
			}
			out[k] = string(b)
		default:
			out[k] = v
		}
	}
	return out, nil
}

func decodeProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		trimmed := strings.TrimSpace(s)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			var decoded any
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				switch decoded.(type) {
				case map[string]any, []any:
					out[k] = decoded
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}

func primitiveList(items []any) bool {
	for _, item := range items {
		switch item.(type) {
		case string, bool, int, int64, float64:
		default:
			return false
		}
	}
	return true
}
