package catalog

import "strings"

// Match reports whether eventType matches a hook filter pattern.
//
//	"user.deleted"  exact match
//	"user.*"        any single trailing segment
//	"*"             everything
func Match(pattern, eventType string) bool {
	if pattern == "*" || pattern == eventType {
		return true
	}

	pp := strings.Split(pattern, ".")
	ep := strings.Split(eventType, ".")
	if len(pp) != len(ep) {
		return false
	}
	for i := range pp {
		if pp[i] != "*" && pp[i] != ep[i] {
			return false
		}
	}
	return true
}

// MatchAny reports whether eventType matches at least one pattern. An empty
// pattern list matches everything.
func MatchAny(patterns []string, eventType string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if Match(p, eventType) {
			return true
		}
	}
	return false
}
