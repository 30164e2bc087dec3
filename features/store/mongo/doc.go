// Package mongo provides the durable MongoDB-backed implementation of
// workflow.Store. Workflow records and history live in separate collections;
// per-workflow sequence numbers come from an atomic counter so insertion
// order is strict even across processes.
package mongo
