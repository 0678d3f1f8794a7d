// Package jsonx extracts JSON objects from collaborator replies. Models
// often wrap JSON in markdown fences or surround it with commentary.
package jsonx

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractObject finds the JSON object in reply and unmarshals it.
func ExtractObject(reply string) (map[string]any, error) {
	raw, err := extract(reply)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("extracted text is not a JSON object: %w", err)
	}
	return obj, nil
}

// extract returns the JSON portion of reply. Tries the whole reply
// first, then the span from the first '{' to the last '}'.
func extract(reply string) (string, error) {
	reply = stripFences(reply)

	var probe any
	if err := json.Unmarshal([]byte(reply), &probe); err == nil {
		return reply, nil
	}

	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start != -1 && end > start {
		candidate := reply[start : end+1]
		if err := json.Unmarshal([]byte(candidate), &probe); err == nil {
			return candidate, nil
		}
	}

	preview := reply
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no valid JSON found in reply: %q", preview)
}

// stripFences removes markdown code fences around the reply.
func stripFences(reply string) string {
	trimmed := strings.TrimSpace(reply)
	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```json"))
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}
	return trimmed
}
