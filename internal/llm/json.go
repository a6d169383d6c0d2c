package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedResponse marks model output that is not the JSON we asked for.
var ErrMalformedResponse = errors.New("malformed model response")

// CleanJSON strips markdown fences and any prose around the outermost JSON
// object or array in a model response.
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return s
	}
	closer := "}"
	if s[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

// DecodeStrict decodes a model response into v. Unknown fields, trailing
// data and type mismatches are all rejected.
func DecodeStrict(raw string, v any) error {
	cleaned := CleanJSON(raw)
	if cleaned == "" {
		return fmt.Errorf("%w: empty", ErrMalformedResponse)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after JSON value", ErrMalformedResponse)
	}
	return nil
}
