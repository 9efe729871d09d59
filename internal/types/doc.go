// Package types implements the structural type system: parsing of type
// expressions, canonical forms, content-addressed identity (TypeID),
// the implicit-coercion whitelist and generic bound checking.
//
// A TypeSpec is a plain tree. Identity is the SHA-256 of the canonical
// rendering, in which struct fields and enum variants are sorted by name;
// declared order is preserved on the spec itself and used by String(), so
// reordering fields never changes a TypeID while adding or removing one
// always does.
//
// Compatibility (Compatible) is deliberately not equality: a closed
// whitelist of safe coercions — representable numeric widening,
// integer→decimal, T→option<T>, Ok→result<Ok,Err>, and the
// backward-compatible struct read — yields Coercible with an adapter name;
// everything else is Incompatible and needs an explicit adapter node in
// the graph.
package types
