package pgwalreceiver

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/jackc/pglogrepl"
)

// WalReceiver turns the server's logical replication protocol into a
// resumable, offset-tracked change stream. It owns the slot lifecycle,
// resolves the resume position after a restart, drains the stream without
// blocking and acknowledges consumed positions so WAL can be recycled.
//
// One receiver drives at most one slot and one stream; the server itself
// rejects a second concurrent stream on an active slot. No retries happen
// internally, the caller owns retry and backoff policy.
type WalReceiver struct {
	cfg    Config
	logger *log.Logger

	conns     *connManager
	slots     *slotManager
	session   *StreamSession
	committer *offsetCommitter

	slot    ReplicationSlot
	newSlot bool
	tables  []SchemaTable
	issues  []ConfigIssue
}

// NewWalReceiver validates the configuration, resolves the schema/table
// allow-list, ensures the slot exists (creating it when missing), picks a
// start position from the persisted offset and opens the logical stream.
// The offset store may be nil when the surrounding pipeline keeps no
// offsets of its own.
func NewWalReceiver(ctx context.Context, config Config, store OffsetStore) (*WalReceiver, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := log.WithPrefix("pgwalreceiver")
	conns := newConnManager(config, logger)
	slots := newSlotManager(conns, logger)

	r := &WalReceiver{
		cfg:    config,
		logger: logger,
		conns:  conns,
		slots:  slots,
	}

	validator := newSchemaTableValidator(conns, logger)
	r.tables, r.issues = validator.Validate(ctx, config.SchemaTables)
	for _, issue := range r.issues {
		logger.Warn("schema/table entry failed to resolve",
			"schema", issue.Schema, "table", issue.Table, "err", issue.Err)
	}

	exists, err := slots.SlotExists(ctx, config.ReplicationSlotName)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err = slots.CreateSlot(ctx, config.ReplicationSlotName, config.DecoderPlugin); err != nil {
			return nil, err
		}
		r.newSlot = true
	}

	r.slot, err = slots.RefreshSlotInfo(ctx, config.ReplicationSlotName)
	if err != nil {
		return nil, err
	}

	// Only a freshly created slot needs an explicit start position; an
	// existing one resumes from its own server-side state.
	var startLSN pglogrepl.LSN
	if r.newSlot {
		persisted := ""
		if store != nil {
			persisted = store.GetOffset(config.ReplicationSlotName)
		}
		var configured pglogrepl.LSN
		if config.StartPolicy == StartExplicitLSN {
			configured, _ = pglogrepl.ParseLSN(config.StartLSN)
		}
		startLSN, err = resolveStartPosition(config.StartPolicy, persisted, r.slot.ConfirmedFlushLSN, configured)
		if err != nil {
			return nil, err
		}
	}

	r.session, err = openStreamSession(ctx, conns, logger, r.slot, r.newSlot, startLSN, config.pollInterval())
	if err != nil {
		return nil, err
	}
	r.committer = newOffsetCommitter(config.ReplicationSlotName, r.session, store, logger)

	return r, nil
}

// DropSlot removes the configured replication slot without opening a
// stream, for administrative cleanup when no receiver is running.
func DropSlot(ctx context.Context, config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	logger := log.WithPrefix("pgwalreceiver")
	return newSlotManager(newConnManager(config, logger), logger).DropSlot(ctx, config.ReplicationSlotName)
}

// ReadPending reads one pending unit of decoder output without blocking.
// A nil message means nothing is available right now.
func (r *WalReceiver) ReadPending(ctx context.Context) (*WalMessage, error) {
	return r.session.ReadPending(ctx)
}

// Commit acknowledges everything received so far back to the server and
// returns the committed position.
func (r *WalReceiver) Commit(ctx context.Context) (pglogrepl.LSN, error) {
	return r.committer.Commit(ctx)
}

// CurrentPosition returns the last received LSN.
func (r *WalReceiver) CurrentPosition() pglogrepl.LSN {
	return r.session.CurrentPosition()
}

// Slot returns the metadata snapshot taken when the receiver started.
func (r *WalReceiver) Slot() ReplicationSlot {
	return r.slot
}

// SchemaTables returns the resolved allow-list.
func (r *WalReceiver) SchemaTables() []SchemaTable {
	return r.tables
}

// ConfigIssues returns the schema/table entries that failed to resolve.
func (r *WalReceiver) ConfigIssues() []ConfigIssue {
	return r.issues
}

// DropSlot is a separate administrative operation; it is never called as
// part of normal shutdown. The session must be closed first or the drop
// will spend its bounded wait terminating this receiver's own backend.
func (r *WalReceiver) DropSlot(ctx context.Context) error {
	return r.slots.DropSlot(ctx, r.cfg.ReplicationSlotName)
}

// Close shuts the replication connection down. The slot is left in place
// for a future resume.
func (r *WalReceiver) Close(ctx context.Context) error {
	if r.session != nil {
		return r.session.Close(ctx)
	}
	return nil
}
