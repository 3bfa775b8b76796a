// Package graph provides durable graph storage for the memory bank.
//
// The Store interface is the contract the rest of the module programs
// against: parameterized Cypher-style queries returning flat property maps.
// The production implementation is backed by Neo4j; tests use the scripted
// fake in the graphtest subpackage. Any store exposing equivalent
// create/merge/match-filter/order-limit/delete semantics satisfies the
// contract.
package graph

import "context"

// Store is the durable graph store contract.
//
// ExecuteQuery returns one map per result record. Returned node values are
// flattened to their property maps, so a query ending in "RETURN m" yields
// records of the form {"m": {<node properties>}}.
type Store interface {
	// ExecuteQuery runs a read query and returns the result records.
	ExecuteQuery(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)

	// ExecuteWrite runs a write query inside a write transaction.
	ExecuteWrite(ctx context.Context, query string, params map[string]any) error

	// InitSchema creates uniqueness constraints and indexes. Idempotent.
	InitSchema(ctx context.Context) error

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}
