package pgwalreceiver

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/jackc/pglogrepl"
)

// statusSession is the slice of StreamSession the committer needs. Tests
// substitute a fake advancing position.
type statusSession interface {
	CurrentPosition() pglogrepl.LSN
	sendStatusUpdate(ctx context.Context, update pglogrepl.StandbyStatusUpdate) error
}

// offsetCommitter acknowledges consumed positions back to the server so
// WAL segments can be recycled. Callers commit at checkpoint boundaries,
// not per record; delivery stays at-least-once.
type offsetCommitter struct {
	slotName string
	session  statusSession
	store    OffsetStore
	logger   *log.Logger

	lastCommitted pglogrepl.LSN
}

func newOffsetCommitter(slotName string, session statusSession, store OffsetStore, logger *log.Logger) *offsetCommitter {
	return &offsetCommitter{
		slotName: slotName,
		session:  session,
		store:    store,
		logger:   logger,
	}
}

// Commit sets the applied and flushed markers to the session's current
// position and forces an immediate status update instead of waiting for
// the next periodic interval. The committed position never regresses: a
// stale session read is clamped to the last committed value.
//
// A failed status update is always surfaced; the server may keep
// retaining WAL the pipeline has already consumed, and the caller decides
// whether to retry or fail the run.
func (c *offsetCommitter) Commit(ctx context.Context) (pglogrepl.LSN, error) {
	pos := c.session.CurrentPosition()
	if pos < c.lastCommitted {
		pos = c.lastCommitted
	}

	err := c.session.sendStatusUpdate(ctx, pglogrepl.StandbyStatusUpdate{
		WALWritePosition: pos,
		WALFlushPosition: pos,
		WALApplyPosition: pos,
	})
	if err != nil {
		return 0, &CommitError{Slot: c.slotName, Err: err}
	}
	c.lastCommitted = pos

	if c.store != nil {
		if err = c.store.SetOffset(pos.String(), c.slotName); err != nil {
			// The server already has the acknowledgement; a failed local
			// checkpoint only widens the at-least-once replay window.
			c.logger.Warn("failed to persist offset", "slot", c.slotName, "lsn", pos, "err", err)
		}
	}
	return pos, nil
}

// LastCommitted returns the highest position acknowledged so far.
func (c *offsetCommitter) LastCommitted() pglogrepl.LSN {
	return c.lastCommitted
}
