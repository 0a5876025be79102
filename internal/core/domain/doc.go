// Package domain defines the core types of Mahuta.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Metadata: the index record of a piece of stored content
//   - Value, Fields: typed index field values
//   - Query, Filter: the backend-agnostic query algebra
//   - PageRequest, Page: pagination and sorting
//   - IndexingRequest, Source: what to store and index
//   - Settings: application configuration
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
