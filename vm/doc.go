// Package vm implements the Clawr entity runtime.
//
// This package contains:
//   - Reference-counted entities with a packed atomic control word
//   - The heap: allocation accounting and the exhaustion policy
//   - Retain, Release and the copy-on-write Isolate barrier
//   - Data and object type descriptors with prefix-compatible layouts
//   - Canonical trait identities and trait dispatch
//   - Flattened object vtables
//   - Boxes, string entities and printing
package vm
