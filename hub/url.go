package hub

import "strings"

const secureScheme = "https://"

// NormalizeBaseURL forces the https scheme onto raw.
// Any leading http:// or https:// prefixes are removed, trailing slashes
// are trimmed, and a single https:// prefix is added back, so
// "http://hub", "hub" and "https://hub/" all become "https://hub".
func NormalizeBaseURL(raw string) string {
	u := strings.TrimSpace(raw)
	for {
		switch {
		case hasPrefixFold(u, secureScheme):
			u = u[len(secureScheme):]
		case hasPrefixFold(u, "http://"):
			u = u[len("http://"):]
		default:
			return secureScheme + strings.TrimRight(u, "/")
		}
	}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
