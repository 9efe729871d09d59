package types

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
)

// TypeID is the content hash of a type's canonical form. Two TypeSpecs are
// identical-by-identity iff their TypeIDs match; adding or removing a struct
// field or enum variant always changes the ID, reordering never does.
type TypeID [32]byte

var NoTypeID TypeID

func (id TypeID) IsZero() bool {
	return id == NoTypeID
}

// Hex returns the full 64-char hex form.
func (id TypeID) Hex() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first 12 hex chars, enough for human output.
func (id TypeID) Short() string {
	return hex.EncodeToString(id[:6])
}

func (id TypeID) String() string {
	return id.Short()
}

// Canonical renders the identity form: identical to String() except that
// struct fields and enum variants are sorted by name. Declared order never
// leaks into identity.
func Canonical(t *TypeSpec) string {
	var sb strings.Builder
	t.render(&sb, true)
	return sb.String()
}

// ID computes the content-addressed identity of a type.
func ID(t *TypeSpec) TypeID {
	return TypeID(sha256.Sum256([]byte(Canonical(t))))
}

// Equal reports identity equality (same TypeID).
func Equal(a, b *TypeSpec) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return ID(a) == ID(b)
}

func sortedFields(fields []Field) []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sortedVariants(variants []Variant) []Variant {
	out := make([]Variant, len(variants))
	copy(out, variants)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Interner caches canonical-form hashes so repeated identity checks over the
// same specs skip re-rendering. Safe for concurrent use.
type Interner struct {
	mu    sync.RWMutex
	byKey map[string]TypeID
}

func NewInterner() *Interner {
	return &Interner{byKey: make(map[string]TypeID)}
}

// Intern returns the TypeID for t, computing and caching it on first sight.
func (in *Interner) Intern(t *TypeSpec) TypeID {
	key := Canonical(t)

	in.mu.RLock()
	id, ok := in.byKey[key]
	in.mu.RUnlock()
	if ok {
		return id
	}

	id = TypeID(sha256.Sum256([]byte(key)))

	in.mu.Lock()
	in.byKey[key] = id
	in.mu.Unlock()
	return id
}

// Len returns the number of distinct canonical forms seen.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.byKey)
}
