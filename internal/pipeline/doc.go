// Package pipeline models the unit of work a run tracks: items, their
// forward-only state machine, and the Set that holds them.
//
// An item is one package at a concrete version. Its state walks the chain
// pending, resolving, resolved, fetching, fetched, building, built,
// installing, installed, or exits early into failed or skipped. Any
// observed state history is a subsequence of that chain: transitions may
// skip states but never go back, and terminal states never change.
//
// The Set is the single serialization point for all state. Stage workers
// mutate items only through Transition, Fail, and Skip; every successful
// mutation yields a Change record the caller forwards to the progress
// layer. Reads return copies, so holders of an Item never observe a
// half-applied update.
//
// Layers partitions a set by dependency depth. The orchestrator installs
// layer k fully before any item in layer k+1 starts, which is what makes
// the installing gate (all dependencies installed or skipped) hold without
// per-item waiting.
package pipeline
