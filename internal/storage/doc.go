// Package storage provides a minimal persistence layer used by the agent.
//
// It currently supports:
//   - Scheduled posts (plain key-value, IDs are unique, puts are upserts)
//   - Publish history appends (one record per fan-out)
package storage
