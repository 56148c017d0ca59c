package proxy

import (
	"strings"
	"unicode"
)

// words splits a Go identifier into lower-case words.
// Acronyms stay together: BodyAsJSON -> body, as, json.
func words(s string) []string {
	runes := []rune(s)
	var out []string
	for i := 0; i < len(runes); {
		if !unicode.IsUpper(runes[i]) {
			j := i
			for j < len(runes) && !unicode.IsUpper(runes[j]) {
				j++
			}
			out = append(out, strings.ToLower(string(runes[i:j])))
			i = j
			continue
		}

		end := i + 1
		for end < len(runes) && unicode.IsUpper(runes[end]) {
			end++
		}
		if end > i+1 {
			// Last uppercase before lowercase starts the next word
			if end < len(runes) && unicode.IsLower(runes[end]) {
				end--
			}
		} else {
			for end < len(runes) && !unicode.IsUpper(runes[end]) {
				end++
			}
		}
		out = append(out, strings.ToLower(string(runes[i:end])))
		i = end
	}
	return out
}

// HostName converts a Go method name to the host-facing camelCase name.
// SetMaxCacheSize -> setMaxCacheSize, BodyAsJSON -> bodyAsJson.
func HostName(goName string) string {
	ws := words(goName)
	if len(ws) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(ws[0])
	for _, w := range ws[1:] {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

// KebabName converts a Go or camelCase name to kebab-case.
// SetMaxCacheSize -> set-max-cache-size, BodyAsJSON -> body-as-json.
func KebabName(name string) string {
	return strings.Join(words(name), "-")
}
