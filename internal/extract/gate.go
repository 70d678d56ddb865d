package extract

import "strings"

// matchesAny reports whether any keyword occurs in content, case-insensitive.
// An empty keyword list matches nothing: a lane with no configured signals
// must never spend a model call.
func matchesAny(content string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	lowered := strings.ToLower(content)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// matchesDomain reports whether the sender address contains one of the known
// business domains.
func matchesDomain(sender string, domains []string) bool {
	return matchesAny(sender, domains)
}
