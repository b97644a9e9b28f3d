// Package common provides shared utilities across the application.
//
// The {{ field }} syntax allows login recipe steps to reference credential
// fields. At request time, these references are replaced with the plaintext
// values resolved from the vault. This is intentionally a fixed-context
// substitution, not a template engine.
package common

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// fieldRefPattern matches {{ field-name }} references in strings.
// Whitespace inside the braces is optional.
var fieldRefPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_-]+)\s*\}\}`)

// Interpolate replaces all {{ field }} references in the input with values
// from the context map. Unknown fields are an error: a login step with an
// unresolvable reference would otherwise send the literal placeholder to the
// remote site.
func Interpolate(input string, context map[string]string) (string, error) {
	if input == "" || !strings.Contains(input, "{{") {
		return input, nil
	}

	var missing []string
	result := fieldRefPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := fieldRefPattern.FindStringSubmatch(match)[1]
		if value, ok := context[name]; ok {
			return value
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("unresolved template fields: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

// InterpolateMap applies Interpolate to every value of the input map and
// returns a new map. Keys are never interpolated.
func InterpolateMap(input map[string]string, context map[string]string) (map[string]string, error) {
	if len(input) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(input))
	for key, value := range input {
		replaced, err := Interpolate(value, context)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		out[key] = replaced
	}
	return out, nil
}
