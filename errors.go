package pgwalreceiver

import (
	"fmt"
	"time"
)

// ConnectionError reports a failure to reach or authenticate with the
// server. It is not retried internally; the caller owns retry policy.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("postgres connection: %v", e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// SlotCreationError reports a failed pg_create_logical_replication_slot
// call.
type SlotCreationError struct {
	Slot string
	Err  error
}

func (e *SlotCreationError) Error() string {
	return fmt.Sprintf("create replication slot %q: %v", e.Slot, e.Err)
}
func (e *SlotCreationError) Unwrap() error { return e.Err }

// SlotCreationMismatchError reports a slot creation call whose result row
// echoed a different slot name than requested.
type SlotCreationMismatchError struct {
	Slot string
	Got  string
}

func (e *SlotCreationMismatchError) Error() string {
	return fmt.Sprintf("create replication slot %q: server returned slot %q", e.Slot, e.Got)
}

// SlotMetadataError reports a failed pg_replication_slots refresh.
type SlotMetadataError struct {
	Slot string
	Err  error
}

func (e *SlotMetadataError) Error() string {
	return fmt.Sprintf("query replication slot %q: %v", e.Slot, e.Err)
}
func (e *SlotMetadataError) Unwrap() error { return e.Err }

// SlotDropTimeoutError reports a slot that was still held by a live
// backend after the bounded deactivation wait. The slot is left untouched.
type SlotDropTimeoutError struct {
	Slot    string
	Elapsed time.Duration
}

func (e *SlotDropTimeoutError) Error() string {
	return fmt.Sprintf("replication slot %q still active after %s", e.Slot, e.Elapsed)
}

// StreamReadError reports a protocol or connection failure while draining
// the logical stream. The session is no longer usable and must be
// reopened.
type StreamReadError struct {
	Slot string
	Err  error
}

func (e *StreamReadError) Error() string {
	return fmt.Sprintf("read replication stream for slot %q: %v", e.Slot, e.Err)
}
func (e *StreamReadError) Unwrap() error { return e.Err }

// CommitError reports a failed standby status update. The server may keep
// retaining WAL the pipeline has already consumed, so this is always
// surfaced to the caller.
type CommitError struct {
	Slot string
	Err  error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit offset for slot %q: %v", e.Slot, e.Err)
}
func (e *CommitError) Unwrap() error { return e.Err }
