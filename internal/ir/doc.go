// Package ir provides the canonical intermediate representation for
// diffraction jobs.
//
// This package contains plain data types only. Every other internal package
// may import ir; ir imports nothing internal. It holds:
//   - JobSpec and its parts: the compiled, immutable description of phases,
//     experiments and refinement settings handed to the core
//   - The error taxonomy shared by the core components
//   - Canonical JSON encoding and content hashes used as cache and job keys
//
// Key design constraints:
//   - Canonical encoding is deterministic: sorted keys, NFC strings,
//     shortest round-trip float formatting, no NaN or Inf
//   - All JSON tags use snake_case
//   - A JobSpec is never mutated after compilation; job.Build creates fresh
//     mutable models from it
package ir
