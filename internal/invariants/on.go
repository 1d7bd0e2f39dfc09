//go:build invariants || race

// Package invariants gates expensive self-checks. They are compiled in when
// building with the "invariants" tag or with the race detector.
package invariants

// Enabled is true when invariant checks are compiled in.
const Enabled = true
