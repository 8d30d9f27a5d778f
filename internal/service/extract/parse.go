package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"ai-voice-bridge-service/internal/schema"
)

// Tier names the parsing strategy that produced a record.
type Tier string

const (
	TierNone   Tier = "none"
	TierStrict Tier = "strict"
	TierFenced Tier = "fenced"
	TierBraces Tier = "braces"
)

var (
	validator = schema.MustNew()
	fenceRe   = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*[ \t]*\r?\n?(.*?)```")
)

// ParseStrict parses the whole text as one JSON object.
func ParseStrict(text string) (map[string]any, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, false
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	if err := validator.Validate(obj); err != nil {
		return nil, false
	}
	return obj, true
}

// ParseFenced parses the first fenced code block that holds a valid object.
func ParseFenced(text string) (map[string]any, bool) {
	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		if obj, ok := ParseStrict(m[1]); ok {
			return obj, true
		}
	}
	return nil, false
}

// ParseBraces parses the first balanced {...} substring. Braces inside JSON
// strings do not count toward the balance. Later substrings are not tried.
func ParseBraces(text string) (map[string]any, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, false
	}
	end := matchBrace(text, start)
	if end < 0 {
		return nil, false
	}
	return ParseStrict(text[start : end+1])
}

// matchBrace returns the index of the brace closing text[open], or -1.
func matchBrace(text string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(text); i++ {
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
				return i
			}
		}
	}
	return -1
}

// Parse applies the strict, fenced and brace tiers in order.
func Parse(text string) (map[string]any, Tier) {
	if obj, ok := ParseStrict(text); ok {
		return obj, TierStrict
	}
	if obj, ok := ParseFenced(text); ok {
		return obj, TierFenced
	}
	if obj, ok := ParseBraces(text); ok {
		return obj, TierBraces
	}
	return nil, TierNone
}
