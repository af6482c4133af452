// Package jsonrecover pulls structured JSON back out of noisy model output.
// Language models frequently wrap their JSON answers in prose, markdown fences,
// or stray tokens; downstream parsers (portal page scraping, exam grading) only
// want the object itself.
package jsonrecover

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNoJSONObject = errors.New("no valid JSON object found in text")

// ExtractObject returns the first balanced top-level {...} substring of text.
// The scan is a plain brace-depth counter: it does not tokenize JSON, so a
// brace inside a string literal will desynchronize the depth count. That
// matches the behavior downstream consumers were built against; callers that
// need strict parsing should run the result through json.Unmarshal and handle
// the failure.
func ExtractObject(text string) (string, error) {
	depth := 0
	start := -1

	for i, ch := range text {
		switch ch {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			depth--
			if depth == 0 && start >= 0 {
				return text[start : i+1], nil
			}
		}
	}

	return "", ErrNoJSONObject
}

// DecodeObject extracts the first balanced object from text and unmarshals it
// into out. Unmarshal failures are reported distinctly from extraction
// failures so callers can tell "no object at all" from "object but garbage".
func DecodeObject(text string, out any) error {
	obj, err := ExtractObject(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(obj), out); err != nil {
		return fmt.Errorf("recovered object is not valid JSON: %w", err)
	}
	return nil
}
