// Package env expands ${env.KEY} references in configuration documents.
package env

import (
	"os"
	"strings"
	"unicode"
)

const prefix = "${env."

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) string

// Expand replaces all occurrences of ${env.KEY} in value with the variable
// value, or an empty string when unset. A reference without a closing brace
// is kept literally; a reference with an invalid key keeps its prefix and
// scanning resumes after it.
func Expand(value string) string {
	return ExpandWith(value, os.Getenv)
}

// ExpandWith is Expand with a custom lookup.
func ExpandWith(value string, lookup LookupFunc) string {
	if !strings.Contains(value, prefix) {
		return value
	}
	var out strings.Builder
	rest := value
	for {
		idx := strings.Index(rest, prefix)
		if idx < 0 {
			out.WriteString(rest)
			return out.String()
		}
		out.WriteString(rest[:idx])
		rest = rest[idx+len(prefix):]
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			out.WriteString(prefix)
			out.WriteString(rest)
			return out.String()
		}
		key := rest[:end]
		if !isKey(key) {
			out.WriteString(prefix)
			continue
		}
		out.WriteString(lookup(key))
		rest = rest[end+1:]
	}
}

func isKey(key string) bool {
	for _, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
