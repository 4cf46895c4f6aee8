package pgwalreceiver

import (
	"time"

	"github.com/jackc/pglogrepl"
)

// ReplicationSlot is a point-in-time snapshot of one row of
// pg_replication_slots. It is refreshed in full on every metadata query
// and never partially updated. A zero Plugin means the slot does not
// exist on the server.
type ReplicationSlot struct {
	Name              string
	Plugin            string
	SlotType          string
	Active            bool
	ActivePID         int32
	RestartLSN        string
	ConfirmedFlushLSN string
}

// Exists reports whether the snapshot describes a live slot. The plugin
// column is the existence signal: it is only set when the slot row was
// found.
func (s ReplicationSlot) Exists() bool {
	return s.Plugin != ""
}

// WalMessage is one unit of decoder output read from the logical stream.
type WalMessage struct {
	// Data is the decoder plugin's payload, opaque to this library.
	Data []byte
	// WALStart is the WAL position at which the payload begins.
	WALStart pglogrepl.LSN
	// ServerWALEnd is the server's current end of WAL when the message
	// was sent.
	ServerWALEnd pglogrepl.LSN
	// ServerTime is the server clock at send time.
	ServerTime time.Time
}

// SchemaTable is one resolved (schema, table) pair from the configured
// allow-list patterns.
type SchemaTable struct {
	Schema string
	Table  string
}

// ConfigIssue records a schema/table entry whose catalog resolution
// failed. Issues are collected, not thrown: one bad entry does not stop
// the remaining entries from resolving.
type ConfigIssue struct {
	Schema string
	Table  string
	Err    error
}
