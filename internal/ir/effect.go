package ir

import (
	"fmt"
	"sort"
	"strings"
)

// Effect strings are dot-separated lowercase domains, e.g. "net.http" or
// "time.now". A trailing "*" segment widens a capability to a whole domain
// ("net.*"); wildcards are only legal as the last segment and only in
// capability positions, never in a block's declared effects.

// ValidEffect checks a concrete effect as declared by a block.
func ValidEffect(effect string) error {
	return checkEffect(effect, false)
}

// ValidCapability checks a capability pattern as declared by a module or
// graph budget.
func ValidCapability(pattern string) error {
	return checkEffect(pattern, true)
}

func checkEffect(s string, allowWildcard bool) error {
	if s == "" {
		return fmt.Errorf("effect must not be empty")
	}
	segs := strings.Split(s, ".")
	for i, seg := range segs {
		if seg == "*" {
			if !allowWildcard {
				return fmt.Errorf("effect %q: wildcards are only allowed in capabilities", s)
			}
			if i != len(segs)-1 {
				return fmt.Errorf("capability %q: \"*\" is only allowed as the last segment", s)
			}
			if len(segs) == 1 {
				return fmt.Errorf("capability %q: bare \"*\" is not a domain", s)
			}
			continue
		}
		if seg == "" {
			return fmt.Errorf("effect %q: empty segment", s)
		}
		for _, c := range seg {
			if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '_' {
				return fmt.Errorf("effect %q: segment %q must be lowercase snake_case", s, seg)
			}
		}
	}
	return nil
}

// EffectAllowed reports whether a concrete effect falls under any of the
// capability patterns. "net.*" covers "net.http" and "net.http.get";
// an exact pattern covers only itself.
func EffectAllowed(effect string, capabilities []string) bool {
	for _, pattern := range capabilities {
		if effectMatches(effect, pattern) {
			return true
		}
	}
	return false
}

func effectMatches(effect, pattern string) bool {
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return effect == prefix || strings.HasPrefix(effect, prefix+".")
	}
	return effect == pattern
}

// NormalizeEffects returns a sorted, deduplicated copy. Digests and
// diagnostics want a canonical order.
func NormalizeEffects(effects []string) []string { return sortedUnique(effects) }

func sortedUnique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	n := 0
	for i, e := range out {
		if i > 0 && e == out[n-1] {
			continue
		}
		out[n] = e
		n++
	}
	return out[:n]
}
