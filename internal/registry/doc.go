// Package registry implements the identity registry operations.
//
// A Registry wraps one invocation's snapshot. Every operation either fails
// with an *ir.Error and leaves the snapshot's persisted counterpart alone (the
// dispatcher discards the snapshot), or succeeds and returns the value that
// goes into the reply. The registry never commits; that is the dispatcher's
// job.
//
// Ownership is checked in exactly one place, authorize, shared by Update,
// Delete, Transfer and SetClaimStatus.
package registry
