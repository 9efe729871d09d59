// Package validate checks a version-pinned graph against the registry it was
// resolved from. It runs five semantic checks over the IR: port/type
// compatibility along every edge, the effect/determinism boundary, stream
// merge policies on fan-in, cycle safety, and generic bound satisfaction.
//
// Validation is all-or-nothing: every check runs and reports into one bag,
// and any error-severity finding means no ValidatedGraph is produced. The
// registry is never mutated; the same graph and registry always yield the
// same diagnostics.
package validate
