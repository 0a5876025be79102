// Package services implements the driving port interfaces.
// Services contain the core logic of Mahuta: the indexing and retrieval
// workflow, the bounded read pool in front of the content store, replica
// fan-out and asynchronous pinning. They orchestrate calls to driven ports
// (adapters).
package services
