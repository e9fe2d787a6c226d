// Package provenance anchors medical-record provenance across three
// independently failing systems: a content-addressed blob store, an
// append-only smart-contract ledger, and a mutable relational index.
//
// The ledger is the single source of truth for token ownership and
// access grants. The index is a derived read-model: a revocable cache
// that reconciles toward ledger state and never the reverse. The engine
// coordinates mint, grant, revoke, and query operations with explicit
// partial-failure semantics; cross-system writes are modelled as a saga
// (a mint confirmed on-ledger but not yet indexed is a recoverable
// state, not an error), and Reconcile rebuilds index rows from ledger
// truth at any time.
//
// Basic usage:
//
//	engine, err := provenance.New(
//	    provenance.WithContentStore(store),
//	    provenance.WithLedger(ledger),
//	    provenance.WithIndex(index),
//	)
package provenance
