package ir

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	moduleNameRe  = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)*$`)
	genericNameRe = regexp.MustCompile(`^[A-Z][a-zA-Z0-9]*$`)
	idRe          = regexp.MustCompile(`^[a-z0-9_]+$`)
	integrityRe   = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)
)

// ValidModuleName reports whether name is lowercase snake_case segments
// joined by dots, e.g. "org.std". Block and graph local names share the same
// shape.
func ValidModuleName(name string) bool { return moduleNameRe.MatchString(name) }

// ValidGenericName reports whether name is a legal type variable: an
// uppercase letter followed by alphanumerics.
func ValidGenericName(name string) bool { return genericNameRe.MatchString(name) }

// ValidID reports whether id is a legal node, edge, export or const id: one
// lowercase snake_case segment.
func ValidID(id string) bool { return idRe.MatchString(id) }

// ValidIntegrity reports whether s is "sha256:" followed by 64 lowercase hex
// digits.
func ValidIntegrity(s string) bool { return integrityRe.MatchString(s) }

// SplitRef splits a "module/name" reference into its module and local name.
func SplitRef(ref string) (module, name string, err error) {
	module, name, ok := strings.Cut(ref, "/")
	if !ok || module == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("reference must be \"module/name\", got %q", ref)
	}
	if !ValidModuleName(module) {
		return "", "", fmt.Errorf("invalid module name %q in reference", module)
	}
	if !ValidModuleName(name) {
		return "", "", fmt.Errorf("invalid local name %q in reference", name)
	}
	return module, name, nil
}

// FQKey builds the registry key for one published block or graph:
// "module@version:name".
func FQKey(module, version, name string) string {
	return module + "@" + version + ":" + name
}
