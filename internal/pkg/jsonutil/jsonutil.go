// Package jsonutil recovers JSON from model output that wraps it in prose,
// markdown fences or JavaScript-isms.
package jsonutil

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedArray    = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\[.*\\])\\s*```")
	bareArray      = regexp.MustCompile(`(?s)\[.*\]`)
	fencedObject   = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	bareObject     = regexp.MustCompile(`(?s)\{.*\}`)
	trailingCommas = regexp.MustCompile(`,\s*([}\]])`)
	quoted         = regexp.MustCompile(`"([^"]+)"`)
)

// ExtractArray returns the first JSON array found in s, fenced blocks first.
// Returns "" when nothing array-shaped is present.
func ExtractArray(s string) string {
	if m := fencedArray.FindStringSubmatch(s); len(m) > 1 {
		return Clean(m[1])
	}
	if m := bareArray.FindString(s); m != "" {
		return Clean(m)
	}
	return ""
}

// ExtractObject is ExtractArray for objects.
func ExtractObject(s string) string {
	if m := fencedObject.FindStringSubmatch(s); len(m) > 1 {
		return Clean(m[1])
	}
	if m := bareObject.FindString(s); m != "" {
		return Clean(m)
	}
	return ""
}

// Clean strips // comments outside string literals and trailing commas.
func Clean(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripComment(line)
	}
	return trailingCommas.ReplaceAllString(strings.Join(lines, "\n"), "$1")
}

func stripComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}
	inString, escaped := false, false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '/' && i+1 < len(line) && line[i+1] == '/':
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}

// StringArray decodes s as an array and keeps only the string elements,
// trimmed and non-empty. ok is false when s is not an array at all.
func StringArray(s string) (out []string, ok bool) {
	var items []any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &items); err != nil {
		return nil, false
	}
	for _, it := range items {
		if str, isStr := it.(string); isStr {
			if str = strings.TrimSpace(str); str != "" {
				out = append(out, str)
			}
		}
	}
	return out, true
}

// QuotedStrings returns every "..." run in s, in order.
func QuotedStrings(s string) []string {
	var out []string
	for _, m := range quoted.FindAllStringSubmatch(s, -1) {
		if v := strings.TrimSpace(m[1]); v != "" {
			out = append(out, v)
		}
	}
	return out
}
