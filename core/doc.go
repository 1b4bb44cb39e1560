// Package core defines the shared data model of the conversation pipeline:
// sessions and their message history, the per-request pipeline context,
// tool invocation records, metrics snapshots and the error taxonomy used
// across package boundaries. It carries no dependencies on the other
// convopipe packages so that stores, stages and dispatchers can all depend
// on it without cycles.
package core
