package uow

import "fmt"

// ValidationError reports a missing or malformed input field. It is surfaced
// to the caller before any side effect occurs.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ReferenceError reports a record intent referencing a temporary id that is
// not registered in the graph. The fixed workflows build their graphs
// statically, so this is a programming defect rather than bad user input.
type ReferenceError struct {
	Ref Ref
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("unregistered reference %q", string(e.Ref))
}

// CommitError wraps a failure from the remote store's composite write. The
// store is the atomicity boundary; a CommitError means no records were
// persisted.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit failed: %v", e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// DeliveryError wraps a failed webhook delivery. Deliveries are best-effort:
// the error is logged by the pipeline and never propagated to the caller.
type DeliveryError struct {
	URL string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook delivery to %s failed: %v", e.URL, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
