package util

import (
	"errors"
	"strings"
)

// ErrNoJSONObject is returned when text holds no balanced JSON object.
var ErrNoJSONObject = errors.New("no json object found")

// ExtractJSONObject returns the first balanced {...} span in text. Braces
// inside string literals are ignored. Text generators tend to wrap JSON in
// prose or code fences, so callers pass the raw reply.
func ExtractJSONObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		depth, inString, escaped := 0, false, false
		for i := start; i < len(text); i++ {
			c := text[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
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
					return text[start : i+1], nil
				}
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", ErrNoJSONObject
}
