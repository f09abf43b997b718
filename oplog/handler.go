package oplog

// OperationHandler is the sink for observed writes, one method per
// operation kind. Every method receives the full entry, not just the
// payload, so consumers can reach ts/t/h for auditing or their own
// redelivery deduplication. There are no default no-op implementations;
// a concrete handler decides its own behavior for kinds it ignores.
//
// A returned error halts the observe loop and propagates to its caller
// unmodified, with the observer checkpoint still at the last successful
// dispatch.
type OperationHandler interface {
	OnInsert(entry *Entry) error

	OnUpdate(entry *Entry) error

	OnDelete(entry *Entry) error
}
