package recommender

import (
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// CleanJobLink repairs the apply links found in scraped job data: bare
// e-mail addresses become mailto links, a space after the scheme is removed,
// and the first URL is extracted from surrounding text.
func CleanJobLink(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "@") && !strings.Contains(raw, "http") {
		return "mailto:" + raw
	}

	raw = strings.ReplaceAll(raw, "https: ", "https://")
	raw = strings.ReplaceAll(raw, "http: ", "http://")
	raw = strings.ReplaceAll(raw, " ", "")

	if m := urlPattern.FindString(raw); m != "" {
		return m
	}
	return raw
}
