package utils

import "strings"

// ParseOrigins reads a comma-separated CORS origin list. Each entry is
// trimmed and lowercased and loses any trailing slash, so that it compares
// equal to the Origin header a browser sends. Empty and repeated entries
// are dropped. Returns nil when no origin remains.
func ParseOrigins(s string) []string {
	var origins []string
	seen := make(map[string]bool)

	for _, v := range strings.Split(s, ",") {
		origin := strings.ToLower(strings.TrimRight(strings.TrimSpace(v), "/"))
		if origin == "" || seen[origin] {
			continue
		}
		seen[origin] = true
		origins = append(origins, origin)
	}

	return origins
}
