// Package diag defines the diagnostic model shared by manifest loading,
// version resolution, graph validation and the scheduler.
//
// # Purpose
//
//   - Provide deterministic, serialisable records for findings produced by
//     any phase (registry, validator, runtime).
//   - Offer light-weight utilities (Reporter, Bag) so producers can emit
//     diagnostics without coupling to storage or formatting layers.
//   - Model fix suggestions ("insert map adapter", "add fold with init:0")
//     as structured data that tools can surface for one-click repairs.
//
// # Scope
//
// Package diag performs no formatting or IO. Rendering lives in
// internal/diagfmt; phases talk to a Reporter or fill a Bag.
//
// # Codes
//
// Code is numeric for compactness, but the published contract is Name():
// a CamelCase identifier ("TypeMismatch", "CycleDetected") that is stable
// forever once shipped. ID() gives the short family form ("VAL4006") used
// in human output. Families: TYP (types), RES (resolution), MAN (manifest),
// VAL (graph validation), RUN (runtime).
//
// # Collection semantics
//
// Validation never short-circuits: every check runs and reports into the
// same Bag, and the caller inspects HasErrors() afterwards. Bag.Sort gives
// a deterministic order; Bag.Dedup removes exact repeats (same code, same
// primary span).
package diag
