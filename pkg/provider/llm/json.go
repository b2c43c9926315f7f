package llm

import (
	"errors"
	"strings"
)

// ErrNoJSON is returned by [ExtractJSON] when the reply holds no JSON object.
var ErrNoJSON = errors.New("llm: no JSON object in reply")

// ExtractJSON returns the outermost JSON object in a model reply. Models often
// wrap JSON in a ```json fence or add a sentence before it; both are
// stripped. Braces inside string literals are respected.
func ExtractJSON(reply string) (string, error) {
	start := strings.IndexByte(reply, '{')
	if start < 0 {
		return "", ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(reply); i++ {
		c := reply[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return reply[start : i+1], nil
			}
		}
	}
	return "", ErrNoJSON
}
