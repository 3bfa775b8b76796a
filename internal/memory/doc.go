// Package memory defines the data model for the trajectory memory bank.
//
// The model mirrors the persisted graph schema:
//   - Trajectory: one completed agent run, immutable after creation
//   - Fragment: a contiguous step range within a trajectory, one coherent
//     sub-episode (exploration, error recovery, etc.)
//   - State: a point-in-time snapshot used only as a retrieval query key
//   - Methodology: an abstracted situation->strategy rule with an
//     empirically tracked success rate
//   - ErrorPattern: a recurring error signature, merged on error type
//
// Entities validate their invariants at construction time: unknown fragment
// types, task types, or phases are rejected immediately rather than coerced.
// Every entity converts to and from a flat property map (ToMap / *FromMap),
// which is the representation the graph store reads and writes.
package memory
