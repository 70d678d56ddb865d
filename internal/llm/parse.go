package llm

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// Reasoning is the prose a model emits around its JSON payload, kept for
// audit logging.
type Reasoning struct {
	Before string
	After  string
}

// ParseObject extracts a single JSON object from a raw completion that may be
// wrapped in markdown fences and surrounding prose. All failures are contained:
// the result is an empty map plus a logged diagnostic, never an error.
func ParseObject(raw string, logger *slog.Logger) (map[string]any, Reasoning) {
	if logger == nil {
		logger = slog.Default()
	}
	span, reasoning, ok := delimitedSpan(stripFences(raw), '{', '}')
	if !ok {
		logger.Warn("llm.parse.no_object", "raw_len", len(raw))
		return map[string]any{}, Reasoning{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(span), &m); err != nil {
		logger.Warn("llm.parse.object_decode_failed", "error", err, "span_len", len(span))
		return map[string]any{}, Reasoning{}
	}
	return m, surrounding(raw, span, reasoning)
}

// ParseArray extracts a JSON array from a raw completion. When no top-level
// array is present but a single object is, the object is wrapped into a
// one-element slice. Failures yield an empty slice, never an error.
func ParseArray(raw string, logger *slog.Logger) ([]map[string]any, Reasoning) {
	if logger == nil {
		logger = slog.Default()
	}
	text := stripFences(raw)

	if span, reasoning, ok := delimitedSpan(text, '[', ']'); ok {
		var items []map[string]any
		if err := json.Unmarshal([]byte(span), &items); err == nil {
			return items, surrounding(raw, span, reasoning)
		}
		logger.Warn("llm.parse.array_decode_failed", "span_len", len(span))
	}

	// Fallback: a model returning one item without the wrapping array is
	// recoverable.
	if span, reasoning, ok := delimitedSpan(text, '{', '}'); ok {
		var m map[string]any
		if err := json.Unmarshal([]byte(span), &m); err == nil {
			reasoning = surrounding(raw, span, reasoning)
			if len(m) == 0 {
				return []map[string]any{}, reasoning
			}
			return []map[string]any{m}, reasoning
		}
		logger.Warn("llm.parse.fallback_object_decode_failed", "span_len", len(span))
	}

	logger.Warn("llm.parse.no_array", "raw_len", len(raw))
	return []map[string]any{}, Reasoning{}
}

// surrounding recomputes the before/after reasoning against the original
// completion, so prose outside a markdown fence is captured too.
func surrounding(raw, span string, fallback Reasoning) Reasoning {
	start := strings.Index(raw, span)
	if start < 0 {
		return fallback
	}
	return Reasoning{
		Before: strings.TrimSpace(raw[:start]),
		After:  strings.TrimSpace(raw[start+len(span):]),
	}
}

// stripFences unwraps a ``` or ```json fenced block if one is present.
func stripFences(s string) string {
	if i := strings.Index(s, "```json"); i >= 0 {
		rest := s[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			return rest[:j]
		}
		return rest
	}
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if j := strings.Index(rest, "```"); j >= 0 {
			return rest[:j]
		}
		return rest
	}
	return s
}

// delimitedSpan finds the first open delimiter and scans to its matching close
// with a naive depth counter. Delimiters inside quoted strings are NOT
// accounted for; a literal brace in a string value can truncate the span early.
// That matches the established parsing behavior, and a bad span degrades to an
// empty result downstream.
func delimitedSpan(s string, open, close byte) (span string, reasoning Reasoning, ok bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", Reasoning{}, false
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				end := i + 1
				reasoning = Reasoning{
					Before: strings.TrimSpace(s[:start]),
					After:  strings.TrimSpace(s[end:]),
				}
				return s[start:end], reasoning, true
			}
		}
	}
	return "", Reasoning{}, false
}
