// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - StorageBackend: content-addressed payload store (IPFS, pebble, datastore)
//   - IndexBackend: metadata index and search (Elasticsearch, SQLite, memory)
//   - ConfigStore: application configuration
//
// # Optional Interfaces
//
//   - PinningReplica: zero or more auxiliary pinning services. Replica
//     failures never fail a write.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
