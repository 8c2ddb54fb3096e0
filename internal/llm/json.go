package llm

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
)

// ParseJSONResponse parses a JSON response from an LLM, handling markdown code blocks.
func ParseJSONResponse(text string) map[string]any {
	var result map[string]any
	if err := ParseJSONInto(text, &result); err != nil {
		log.Printf("Failed to parse LLM response as JSON: %v", err)
		return nil
	}
	return result
}

// ParseJSONInto decodes the JSON object in an LLM response into v. Code fences
// and chatter before the first brace or after the last are ignored.
func ParseJSONInto(text string, v any) error {
	text = StripFences(text)
	if text == "" {
		return fmt.Errorf("empty response")
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start > 0 && end > start {
		text = text[start : end+1]
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("decoding JSON: %w", err)
	}
	return nil
}

// StripFences trims whitespace and removes a surrounding markdown code fence.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) == 1 {
		return strings.TrimSpace(strings.Trim(text, "`"))
	}
	endIdx := len(lines)
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
}
