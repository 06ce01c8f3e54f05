package intent

import (
	"strings"

	"github.com/goccy/go-json"
)

// ExtractJSON locates the first balanced JSON object in text. Models often
// wrap structured output in prose or markdown fences, and the prose may hold
// brace groups that are not JSON, so each candidate must parse.
func ExtractJSON(text string) (string, bool) {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	for offset := 0; offset < len(text); {
		i := strings.IndexByte(text[offset:], '{')
		if i == -1 {
			break
		}
		start := offset + i
		if end, ok := balanced(text, start); ok && json.Valid([]byte(text[start:end])) {
			return text[start:end], true
		}
		offset = start + 1
	}
	return "", false
}

// balanced returns the index just past the brace closing the one at start.
func balanced(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escape = true
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
				return i + 1, true
			}
		}
	}
	return 0, false
}
