package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/titanous/json5"
)

// Parse decodes a model answer into out. Markdown code fences and text
// around the outermost JSON object are ignored, and answers that are only
// valid JSON5 (trailing commas, single quotes, comments) are accepted.
func Parse(text string, out any) error {
	body := extractObject(text)
	if body == "" {
		return fmt.Errorf("%w: no JSON object in answer", ErrInvalidResponse)
	}
	err := json.Unmarshal([]byte(body), out)
	if err == nil {
		return nil
	}
	if err5 := json5.Unmarshal([]byte(body), out); err5 != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func extractObject(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}
