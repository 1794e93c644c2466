package metrics

import (
	"fmt"
	"strings"
	"unicode"
)

var friendlyAliases = map[string]string{
	"runner.HTTPError":              "Unexpected HTTP status",
	"url.Error":                     "Transport error",
	"net.OpError":                   "Network error",
	"context.deadlineExceededError": "Timeout",
	"context.deadlineExceeded":      "Timeout",
	"errors.errorString":            "Error",
}

// FriendlyErrorName returns a human-friendly label for a Go error type name
// as produced by fmt's %T verb.
func FriendlyErrorName(typeName string) string {
	cleaned := strings.TrimPrefix(strings.TrimSpace(typeName), "*")
	if cleaned == "" {
		return "Unknown error"
	}
	if idx := strings.LastIndex(cleaned, "/"); idx != -1 {
		cleaned = cleaned[idx+1:]
	}
	if alias, ok := friendlyAliases[cleaned]; ok {
		return alias
	}

	pkg := ""
	name := cleaned
	if idx := strings.Index(name, "."); idx != -1 {
		pkg = name[:idx]
		name = name[idx+1:]
	}

	pretty := humanizeTypeName(name)
	if pretty == "" {
		pretty = name
	}
	if pkg != "" && pkg != "main" {
		return fmt.Sprintf("%s (%s)", pretty, pkg)
	}
	return pretty
}

// humanizeTypeName splits a CamelCase identifier into words, keeping acronyms intact.
func humanizeTypeName(name string) string {
	var words []string
	var current []rune
	runes := []rune(name)

	flush := func() {
		if len(current) == 0 {
			return
		}
		word := string(current)
		if strings.ToUpper(word) != word {
			word = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
		}
		words = append(words, word)
		current = current[:0]
	}

	for i, r := range runes {
		if i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsUpper(r) && (unicode.IsLower(prev) || (unicode.IsUpper(prev) && nextLower)) {
				flush()
			}
		}
		current = append(current, r)
	}
	flush()

	return strings.Join(words, " ")
}
