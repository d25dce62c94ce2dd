// Package domain defines the core business entities for Strata.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Record: One transcript segment plus accumulated annotations
//   - Code / Category / Concept: Progressively coarser groupings,
//     each anchored to the records that evidence it
//   - Storyline: The terminal narrative artifact
//   - StageResult: The complete output of one pipeline stage
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
