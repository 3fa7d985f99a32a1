package service

import (
	"regexp"
	"strings"
)

// urlPattern matches http(s) URLs in plain or markdown text.
var urlPattern = regexp.MustCompile(`https?://[^\s<>()\[\]{}"']+`)

// ExtractURLs returns the distinct URLs in text, in order of first appearance.
// Trailing punctuation that belongs to the sentence, not the URL, is stripped.
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	urls := make([]string, 0, len(matches))

	for _, m := range matches {
		m = strings.TrimRight(m, ".,!?:;")
		if m == "" {
			continue
		}

		if _, ok := seen[m]; ok {
			continue
		}

		seen[m] = struct{}{}
		urls = append(urls, m)
	}

	return urls
}

// DisallowedURLs returns the URLs in text that are not in allowed. An empty
// result means the text satisfies link closure: every link it contains was
// either in the memory context or in the original message. A hallucinated
// link is a correctness bug, not a style issue.
func DisallowedURLs(text string, allowed []string) []string {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, u := range allowed {
		allowedSet[strings.TrimRight(u, ".,!?:;")] = struct{}{}
	}

	var offending []string

	for _, u := range ExtractURLs(text) {
		if _, ok := allowedSet[u]; !ok {
			offending = append(offending, u)
		}
	}

	return offending
}
