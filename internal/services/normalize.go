package services

import (
	"encoding/json"
	"strings"
)

// NormalizeModelResponse unwraps a model response that arrives as JSON or
// as JSON inside ``` fence markup. The unwrapped content is re-marshalled
// compactly when it parses as JSON; content that does not parse is passed
// through trimmed but otherwise unchanged, so a malformed model response
// never fails the transformation stage. The boolean reports whether the
// response parsed as JSON.
func NormalizeModelResponse(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.Trim(trimmed, "`")
		if strings.HasPrefix(strings.ToLower(trimmed), "json") {
			trimmed = strings.TrimSpace(trimmed[4:])
		} else {
			trimmed = strings.TrimSpace(trimmed)
		}
	}

	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return trimmed, false
	}
	compact, err := json.Marshal(parsed)
	if err != nil {
		return trimmed, false
	}
	return string(compact), true
}
