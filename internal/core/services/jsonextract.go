package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/strata-qda/strata-cli/internal/core/domain"
)

var fenceOpenRe = regexp.MustCompile("(?i)^```(?:json)?[ \t]*\n?")

// ExtractJSON salvages a JSON object from raw model output. Models wrap
// JSON in markdown fences or prepend prose despite instructions, so the
// parse is forgiving: strip code fences, try the whole text, then fall
// back to the outermost brace-delimited substring.
//
// Returns the salvaged JSON bytes (for typed unmarshalling) and the
// decoded document (for schema validation). Failure wraps
// domain.ErrMalformedResponse.
func ExtractJSON(text string) ([]byte, any, error) {
	s := strings.TrimSpace(text)
	s = fenceOpenRe.ReplaceAllString(s, "")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	s = strings.TrimSpace(s)

	if doc, err := decodeJSON(s); err == nil {
		return []byte(s), doc, nil
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		snippet := s[start : end+1]
		if doc, err := decodeJSON(snippet); err == nil {
			return []byte(snippet), doc, nil
		}
	}

	return nil, nil, fmt.Errorf("%w: no JSON object found in response", domain.ErrMalformedResponse)
}

// decodeJSON strictly decodes the whole string as one JSON value.
func decodeJSON(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}
