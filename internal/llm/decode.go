package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"synapse/internal/contract"
)

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		// drop the language tag line
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// decodeObject turns model text into an object for shape. A bare JSON array is
// accepted when shape has exactly one list field, and non-JSON text when it has
// exactly one string field. Everything else must be a JSON object.
func decodeObject(text string, shape contract.Shape) (map[string]any, error) {
	text = stripCodeFence(text)

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj != nil {
		return obj, nil
	}

	if len(shape) == 1 {
		f := shape[0]
		switch f.Kind {
		case contract.KindStringList:
			var list []any
			if err := json.Unmarshal([]byte(text), &list); err == nil {
				return map[string]any{f.Name: list}, nil
			}
		case contract.KindString:
			if text != "" && !strings.HasPrefix(text, "{") {
				return map[string]any{f.Name: text}, nil
			}
		}
	}
	return nil, fmt.Errorf("parse model output as JSON object: %q", shorten(text, 120))
}

func shorten(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
