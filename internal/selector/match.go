// Package selector chooses which decoy origin the helper mirrors for a
// given SOCKS destination: pattern match against the catalog's
// DecoyEntry.HostPatterns, weighted rotation among equally-specific
// matches, and short-lived deprioritization of recently failed decoys.
package selector

import "strings"

// matchPattern reports whether pattern matches host, and if so how
// specific the match is (larger is more specific). The catch-all "*" is
// always the least specific match; an exact literal is always the most
// specific; a "*.suffix" wildcard's specificity is the length of its
// suffix, so "*.a.b.example.com" outranks "*.example.com" for a host that
// satisfies both.
func matchPattern(pattern, host string) (matched bool, specificity int) {
	if pattern == "*" {
		return true, 0
	}
	if !strings.HasPrefix(pattern, "*.") {
		if pattern == host {
			return true, len(pattern) + 1_000_000 // exact literals always outrank wildcards
		}
		return false, 0
	}
	suffix := pattern[1:] // ".example.com"
	if strings.HasSuffix(host, suffix) && len(host) > len(suffix) {
		return true, len(suffix)
	}
	return false, 0
}

// bestSpecificity returns the highest specificity at which any of
// patterns matches host, and whether any pattern matched at all.
func bestSpecificity(patterns []string, host string) (int, bool) {
	best := -1
	found := false
	for _, p := range patterns {
		if ok, spec := matchPattern(p, host); ok {
			found = true
			if spec > best {
				best = spec
			}
		}
	}
	return best, found
}
