// Package graph provides the immutable workflow graph model and its
// structural validator.
//
// A Graph is built once, from a node and edge list or via the fluent
// Builder, and is never mutated afterwards; edits on the authoring surface
// produce a new Graph value. This lets the engine validate and execute a
// snapshot concurrently with authoring without aliasing hazards.
//
// Validate runs every structural check (entry/terminal counts, cycles,
// reachability) in one pass and reports all problems at once.
package graph
