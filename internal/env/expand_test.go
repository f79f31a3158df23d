package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandWith(t *testing.T) {
	vars := map[string]string{"FOO": "bar", "A": "1", "B": "2", "X": "x"}
	lookup := func(key string) string { return vars[key] }

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "no expressions", input: "just a plain string", expected: "just a plain string"},
		{name: "single expression", input: "value is ${env.FOO}", expected: "value is bar"},
		{name: "multiple expressions", input: "${env.A}-${env.B}-${env.A}", expected: "1-2-1"},
		{name: "unset variable becomes empty", input: "unset=${env.NOTSET}-end", expected: "unset=-end"},
		{name: "invalid key keeps prefix", input: "start ${env.X and ${env.Y} end", expected: "start ${env.X and  end"},
		{name: "missing closing brace", input: "dsn=${env.FOO", expected: "dsn=${env.FOO"},
		{name: "prefix only no key", input: "oops ${env.} done", expected: "oops  done"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ExpandWith(tc.input, lookup))
		})
	}
}
