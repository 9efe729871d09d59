// Package ir holds the lowered intermediate representation consumed by the
// registry, the validator and the scheduler: module manifests, block specs,
// graph specs and the typed const pool. Front-ends (textual or visual) emit
// this form; nothing in here evaluates anything.
//
// Nodes and edges are flat slices addressed by string id, so cyclic graphs
// are plain data. Reserved endpoint node ids "$input" and "$const" bind graph
// boundary inputs and const-pool literals to ordinary edges.
package ir
