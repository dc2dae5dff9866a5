package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies every failure the model pipeline can produce. Each
// kind maps to exactly one user-facing message; raw upstream errors never
// reach the browser.
type ErrorKind string

const (
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	KindEmptyResponse       ErrorKind = "empty_response"
	KindUnparsableContent   ErrorKind = "unparsable_content"
	KindSchemaMismatch      ErrorKind = "schema_mismatch"
	KindInvalidUserInput    ErrorKind = "invalid_user_input"
)

type modelError struct {
	Kind   ErrorKind
	Detail string
	// Reason carries the model-supplied rejection text when the input
	// itself was judged invalid (e.g. "no transaction data found"). It is
	// the only model text ever surfaced verbatim to the user.
	Reason string
	cause  error
}

func (e *modelError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *modelError) Unwrap() error {
	return e.cause
}

func newModelError(kind ErrorKind, detail string) *modelError {
	return &modelError{Kind: kind, Detail: detail}
}

func wrapModelError(kind ErrorKind, detail string, cause error) *modelError {
	return &modelError{Kind: kind, Detail: detail, cause: cause}
}

// rejectedInput builds the distinguished "model judged the input invalid"
// failure. It is schema-mismatch adjacent but keeps the reason so callers
// can surface it verbatim.
func rejectedInput(reason string) *modelError {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "The provided text does not look like a bank statement."
	}
	return &modelError{Kind: KindSchemaMismatch, Detail: "input rejected by validity check", Reason: reason}
}

func errorKind(err error) (ErrorKind, bool) {
	var me *modelError
	if errors.As(err, &me) {
		return me.Kind, true
	}
	return "", false
}

func rejectionReason(err error) string {
	var me *modelError
	if errors.As(err, &me) {
		return me.Reason
	}
	return ""
}

// diagnosticPrefixLen bounds how much cleaned model text is kept in
// unparsable-content diagnostics. Diagnostics stay process-local.
const diagnosticPrefixLen = 160

// cleanModelText strips markdown code fences from a raw model reply and
// trims surrounding whitespace. The fenced content is kept, only the
// markers go. Empty-content checks happen before this is called.
func cleanModelText(raw string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "\uFEFF")

	if strings.Contains(text, "```") {
		var b strings.Builder
		b.Grow(len(text))
		rest := text
		open := false
		for {
			idx := strings.Index(rest, "```")
			if idx < 0 {
				b.WriteString(rest)
				break
			}
			chunk := rest[:idx]
			if open {
				// The newline before a closing fence belongs to the marker.
				chunk = strings.TrimSuffix(chunk, "\n")
				chunk = strings.TrimSuffix(chunk, "\r")
			}
			b.WriteString(chunk)
			rest = rest[idx+3:]
			if !open {
				// An opening fence may carry a language tag and owns the
				// newline that follows it.
				rest = stripFenceTag(rest)
				rest = strings.TrimPrefix(rest, "\r")
				rest = strings.TrimPrefix(rest, "\n")
			}
			open = !open
		}
		text = b.String()
	}
	return strings.TrimSpace(text)
}

// stripFenceTag removes a known language tag right after an opening fence.
// Longest tags are tried first so "jsonc" never leaves a stray "c" behind,
// and the tag must end at a word boundary so content that merely starts
// with the letters "json" is untouched.
func stripFenceTag(rest string) string {
	lower := strings.ToLower(rest)
	for _, tag := range []string{"json5", "jsonc", "json"} {
		if !strings.HasPrefix(lower, tag) {
			continue
		}
		after := rest[len(tag):]
		if after == "" || !isTagChar(after[0]) {
			return after
		}
	}
	return rest
}

func isTagChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// extractJSON recovers a JSON value from cleaned model text. Strict parse
// first; when the model wrapped the object in prose, a depth-tracking scan
// pulls out the first balanced brace span instead of the naive
// first-{-to-last-} slice, which truncates or over-captures when prose
// contains stray braces.
func extractJSON(cleaned string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(cleaned)
	if trimmed == "" {
		return nil, newModelError(KindEmptyResponse, "model returned no content")
	}

	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	if candidate, ok := firstBalancedObject(trimmed); ok {
		return json.RawMessage(candidate), nil
	}

	return nil, newModelError(
		KindUnparsableContent,
		fmt.Sprintf("no JSON value found in model reply: %q", truncateForLog(trimmed, diagnosticPrefixLen)),
	)
}

// firstBalancedObject scans for the first brace span that closes at depth
// zero and parses as JSON. String literals and escapes are honored so
// braces inside strings do not confuse the depth count.
func firstBalancedObject(text string) (string, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(text); i++ {
			c := text[i]
			if escaped {
				escaped = false
				continue
			}
			if inString {
				switch c {
				case '\\':
					escaped = true
				case '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					candidate := text[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate, true
					}
					// Balanced but invalid; resume the outer scan past
					// this opening brace.
					i = len(text)
				}
			}
		}
		// A span starting here never closed or never parsed; a later
		// start may still yield a balanced object, so keep scanning.
	}
	return "", false
}

func truncateForLog(value string, limit int) string {
	trimmed := strings.TrimSpace(value)
	if limit <= 0 || len(trimmed) <= limit {
		return trimmed
	}
	return trimmed[:limit] + "...(truncated)"
}
