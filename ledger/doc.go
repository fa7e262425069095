// Package ledger provides the append-only cost ledger and the model pricing
// table used to convert token usage into dollars.
//
// The ledger is the only mutable state shared across concurrent runs; every
// other engine structure is owned by a single run. Entries are never deleted
// or decremented, so a scope's total only grows.
package ledger
