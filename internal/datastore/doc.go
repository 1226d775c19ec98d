// Package datastore implements the on-disk state of the planner: the
// canonical JSON document, the read-only registries and the per-device
// attachment tree. None of the types here lock; callers serialize access.
package datastore
